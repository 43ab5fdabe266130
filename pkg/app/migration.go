package app

import (
	"context"
	"errors"
	"fmt"

	"tableflip.dev/widgetsync/pkg/store"
)

// MigrateStore copies every key from one backend to another, for example
// when switching store.driver from diskv to sqlite. Values are copied as
// stored; existing keys in to are overwritten and nothing is removed from
// from. It returns the number of keys copied.
func MigrateStore(ctx context.Context, from, to store.Backend) (int, error) {
	if from == nil || to == nil {
		return 0, errors.New("app: migrate needs two backends")
	}
	copied := 0
	for _, key := range from.Keys(ctx) {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		raw, err := from.Read(key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return copied, fmt.Errorf("app: migrate read %q: %w", key, err)
		}
		if err := to.Write(key, raw); err != nil {
			return copied, fmt.Errorf("app: migrate write %q: %w", key, err)
		}
		copied++
	}
	return copied, nil
}
