package reconcile

// Side is one party's view of a collection.
type Side[T any] struct {
	Items []T
	TS    int64
}

// ConflictRule picks the collection to keep when both the local and remote
// sides changed since the last sync. localWon reports whether any local
// change survived, which keeps the collection dirty.
type ConflictRule[T any] func(p Policy[T], local, remote Side[T]) (merged []T, localWon bool)

// RemoteWins always takes the server collection.
func RemoteWins[T any]() ConflictRule[T] {
	return func(_ Policy[T], _, remote Side[T]) ([]T, bool) {
		return cloneItems(remote.Items), false
	}
}

// Coarse is whole-collection reconciliation: the remote collection wins
// unless the local collection is non-empty and the remote timestamp is not
// newer than the local one. Concurrent edits on two devices can be lost.
func Coarse[T any]() ConflictRule[T] {
	return func(_ Policy[T], local, remote Side[T]) ([]T, bool) {
		if len(local.Items) > 0 && remote.TS <= local.TS {
			return cloneItems(local.Items), true
		}
		return cloneItems(remote.Items), false
	}
}

// MergeByID merges per item: for ids on both sides the newer stamp wins,
// unconfirmed local items are kept, and durable ids missing from the
// remote side are treated as deleted remotely.
func MergeByID[T any]() ConflictRule[T] {
	return func(p Policy[T], local, remote Side[T]) ([]T, bool) {
		localByID := make(map[string]T, len(local.Items))
		for _, it := range local.Items {
			localByID[p.ID(it)] = it
		}
		merged := make([]T, 0, len(remote.Items)+len(local.Items))
		localWon := false
		for _, r := range remote.Items {
			l, ok := localByID[p.ID(r)]
			if ok && p.Stamp != nil && p.Stamp(l).After(p.Stamp(r)) {
				merged = append(merged, l)
				localWon = true
				continue
			}
			merged = append(merged, r)
		}
		for _, l := range local.Items {
			if IsTemp(p.ID(l)) {
				merged = append(merged, l)
				localWon = true
			}
		}
		return merged, localWon
	}
}

// RuleByName maps a config value to a rule: "coarse", "merge" or "remote".
func RuleByName[T any](name string) (ConflictRule[T], bool) {
	switch name {
	case "", "coarse":
		return Coarse[T](), true
	case "merge":
		return MergeByID[T](), true
	case "remote":
		return RemoteWins[T](), true
	default:
		return nil, false
	}
}

func cloneItems[T any](items []T) []T {
	if items == nil {
		return nil
	}
	return append([]T(nil), items...)
}
