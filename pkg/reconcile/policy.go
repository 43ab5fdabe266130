package reconcile

import (
	"strconv"
	"strings"
	"time"
)

// Temporary id prefixes assigned to locally created items.
const (
	TempPrefix  = "temp-"
	LocalPrefix = "local-"
)

// IsTemp reports whether id was assigned locally and not yet confirmed.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempPrefix) || strings.HasPrefix(id, LocalPrefix)
}

// Policy supplies the entity-specific hooks a Reconciler needs.
type Policy[T any] struct {
	// ID returns the item's identifier.
	ID func(T) string
	// SetID returns item with its identifier replaced.
	SetID func(T, string) T
	// Stamp returns the item's recency timestamp (updatedAt or createdAt).
	Stamp func(T) time.Time
	// IDPrefix is the temporary id prefix; TempPrefix when empty.
	IDPrefix string
	// Conflict resolves a collection that diverged on both sides. Coarse
	// when nil, so an older remote snapshot never replaces newer local edits.
	Conflict ConflictRule[T]
}

func (p Policy[T]) prefix() string {
	if p.IDPrefix == "" {
		return TempPrefix
	}
	return p.IDPrefix
}

func (p Policy[T]) conflict() ConflictRule[T] {
	if p.Conflict == nil {
		return Coarse[T]()
	}
	return p.Conflict
}

// newTempID returns prefix+unixms, bumped until it does not collide with an
// id already in items.
func (p Policy[T]) newTempID(now time.Time, items []T) string {
	taken := make(map[string]struct{}, len(items))
	for _, it := range items {
		taken[p.ID(it)] = struct{}{}
	}
	ms := now.UnixMilli()
	for {
		id := p.prefix() + strconv.FormatInt(ms, 10)
		if _, exists := taken[id]; !exists {
			return id
		}
		ms++
	}
}

// CollectionStamp is the newest item stamp in epoch ms, or 0 when items is
// empty.
func (p Policy[T]) CollectionStamp(items []T) int64 {
	var newest int64
	if p.Stamp == nil {
		return 0
	}
	for _, it := range items {
		if ts := p.Stamp(it); !ts.IsZero() && ts.UnixMilli() > newest {
			newest = ts.UnixMilli()
		}
	}
	return newest
}
