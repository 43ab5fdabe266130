// Package reconcile decides which view of a widget collection is
// authoritative and applies optimistic local mutations ahead of server
// confirmation.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tableflip.dev/widgetsync/pkg/store"
)

// State is the sync state of one collection.
type State int

const (
	// Synced means no local change is awaiting confirmation.
	Synced State = iota
	// LocalAhead means local mutations were applied but not confirmed.
	LocalAhead
	// RemoteAhead is transient: a newer server payload is being applied.
	RemoteAhead
	// Conflict is transient: both sides diverged and the conflict rule ran.
	Conflict
)

func (s State) String() string {
	switch s {
	case Synced:
		return "synced"
	case LocalAhead:
		return "local-ahead"
	case RemoteAhead:
		return "remote-ahead"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrUnknownTicket is returned when acknowledging a mutation that is not
// pending.
var ErrUnknownTicket = errors.New("reconcile: unknown mutation ticket")

// Ticket identifies one applied local mutation until the server answers.
type Ticket uint64

// Reason explains why a Change was emitted.
type Reason string

const (
	ReasonRestore  Reason = "restore"
	ReasonMutation Reason = "mutation"
	ReasonAck      Reason = "ack"
	ReasonFailure  Reason = "failure"
	ReasonRemote   Reason = "remote"
	ReasonConflict Reason = "conflict"
	ReasonReset    Reason = "reset"
)

// Change is emitted on the Events channel after every state transition.
type Change struct {
	Name   string
	Reason Reason
	State  State
	Count  int
}

type mutation struct {
	tempID string
}

// Reconciler owns the in-memory view of one widget collection and its Local
// Store envelope. All methods are safe for concurrent use; local mutations
// are applied and persisted before they return.
type Reconciler[T any] struct {
	name   string
	policy Policy[T]
	slot   store.Slot[[]T]
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	items    []T
	env      store.Envelope
	pending  map[Ticket]mutation
	next     Ticket
	gen      uint64
	restored bool

	flight  singleflight.Group
	eventCh chan Change
}

// Option configures a Reconciler.
type Option func(*options)

type options struct {
	log *slog.Logger
	now func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the clock used for temporary ids.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a Reconciler persisting through slot.
func New[T any](slot store.Slot[[]T], policy Policy[T], opts ...Option) *Reconciler[T] {
	if policy.ID == nil || policy.SetID == nil {
		panic("reconcile: policy requires ID and SetID")
	}
	o := options{log: slog.Default(), now: slot.Store.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reconciler[T]{
		name:    slot.Key,
		policy:  policy,
		slot:    slot,
		log:     o.log.With("collection", slot.Key),
		now:     o.now,
		pending: make(map[Ticket]mutation),
		eventCh: make(chan Change, 64),
	}
}

// Name is the Local Store key backing the collection.
func (r *Reconciler[T]) Name() string { return r.name }

// Events exposes state transitions. Events are dropped when the channel is
// full.
func (r *Reconciler[T]) Events() <-chan Change { return r.eventCh }

// Restore loads the persisted envelope into memory. It runs once; later
// calls are no-ops.
func (r *Reconciler[T]) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
}

func (r *Reconciler[T]) restoreLocked() {
	if r.restored {
		return
	}
	r.restored = true
	items, env, ok := r.slot.Load()
	if !ok {
		return
	}
	r.items = items
	r.env = store.Envelope{TS: env.TS, RemoteTS: env.RemoteTS, Dirty: env.Dirty}
	for _, it := range items {
		if IsTemp(r.policy.ID(it)) {
			r.env.Dirty = true
			break
		}
	}
	r.emitLocked(ReasonRestore)
}

// Reload re-reads the store after another process wrote the key. The
// stored copy replaces memory only when it is newer and no local mutation
// is in flight. It reports whether memory changed.
func (r *Reconciler[T]) Reload() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.restored {
		r.restoreLocked()
		return true
	}
	if len(r.pending) > 0 {
		return false
	}
	items, env, ok := r.slot.Load()
	if !ok || env.TS <= r.env.TS {
		return false
	}
	r.items = items
	r.env = store.Envelope{TS: env.TS, RemoteTS: env.RemoteTS, Dirty: env.Dirty}
	r.gen++
	r.emitLocked(ReasonRestore)
	return true
}

// View returns a copy of the current collection.
func (r *Reconciler[T]) View() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	return cloneItems(r.items)
}

// Find returns the item with id.
func (r *Reconciler[T]) Find(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	if idx := r.indexLocked(id); idx >= 0 {
		return r.items[idx], true
	}
	var zero T
	return zero, false
}

// State reports the current sync state.
func (r *Reconciler[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	return r.stateLocked()
}

// Envelope reports the in-memory sync markers.
func (r *Reconciler[T]) Envelope() store.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	return r.env
}

// Pending is the number of mutations awaiting a server answer.
func (r *Reconciler[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reconciler[T]) stateLocked() State {
	if r.env.Dirty || len(r.pending) > 0 {
		return LocalAhead
	}
	return Synced
}

// ApplyLocalMutation applies fn to a copy of the collection, makes the
// result visible and persists it before returning. The returned ticket is
// passed to OnServerAck or OnServerFailure once the server answers.
func (r *Reconciler[T]) ApplyLocalMutation(fn func(items []T) []T) Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(fn, "")
}

func (r *Reconciler[T]) applyLocked(fn func(items []T) []T, tempID string) Ticket {
	r.restoreLocked()
	r.items = fn(cloneItems(r.items))
	r.gen++
	r.next++
	t := r.next
	r.pending[t] = mutation{tempID: tempID}
	r.env.Dirty = true
	r.persistLocked()
	r.emitLocked(ReasonMutation)
	return t
}

// Create appends item, assigning a temporary id when it has none, and
// returns the item as stored.
func (r *Reconciler[T]) Create(item T) (Ticket, T) {
	return r.CreateWith(item, nil)
}

// CreateWith is Create where prepare first rewrites the existing items in
// the same mutation, so readers never observe the intermediate state.
func (r *Reconciler[T]) CreateWith(item T, prepare func(items []T) []T) (Ticket, T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	id := r.policy.ID(item)
	if id == "" {
		id = r.policy.newTempID(r.now(), r.items)
		item = r.policy.SetID(item, id)
	}
	tempID := ""
	if IsTemp(id) {
		tempID = id
	}
	t := r.applyLocked(func(items []T) []T {
		if prepare != nil {
			items = prepare(items)
		}
		return append(items, item)
	}, tempID)
	return t, item
}

// Update replaces the item with id by fn(item). ok is false when no such
// item exists; no mutation is recorded then.
func (r *Reconciler[T]) Update(id string, fn func(T) T) (Ticket, T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	idx := r.indexLocked(id)
	if idx < 0 {
		var zero T
		return 0, zero, false
	}
	updated := fn(r.items[idx])
	tempID := ""
	if IsTemp(id) {
		tempID = id
	}
	t := r.applyLocked(func(items []T) []T {
		items[idx] = updated
		return items
	}, tempID)
	return t, updated, true
}

// Delete removes the item with id.
func (r *Reconciler[T]) Delete(id string) (Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	idx := r.indexLocked(id)
	if idx < 0 {
		return 0, false
	}
	t := r.applyLocked(func(items []T) []T {
		return append(items[:idx], items[idx+1:]...)
	}, "")
	return t, true
}

// Unconfirmed returns the items still carrying a temporary id that no
// in-flight mutation is about to confirm.
func (r *Reconciler[T]) Unconfirmed() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	var out []T
	for _, it := range r.items {
		if id := r.policy.ID(it); IsTemp(id) && !r.inFlightLocked(id) {
			out = append(out, it)
		}
	}
	return out
}

// Resend returns a ticket for re-creating the unconfirmed item id on the
// server. Acking it with the server's entity replaces the temporary id. ok
// is false when id is unknown, already durable, or being sent.
func (r *Reconciler[T]) Resend(id string) (Ticket, T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	idx := r.indexLocked(id)
	if idx < 0 || !IsTemp(id) || r.inFlightLocked(id) {
		var zero T
		return 0, zero, false
	}
	r.next++
	t := r.next
	r.pending[t] = mutation{tempID: id}
	return t, r.items[idx], true
}

func (r *Reconciler[T]) inFlightLocked(id string) bool {
	for _, m := range r.pending {
		if m.tempID == id {
			return true
		}
	}
	return false
}

// OnServerAck confirms a mutation. When confirmed is non-nil the server's
// entity replaces the local one: the temporary id item for creates, or the
// item with the same id otherwise. The collection returns to Synced once no
// other mutation is pending.
func (r *Reconciler[T]) OnServerAck(t Ticket, confirmed *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.pending[t]
	if !ok {
		return ErrUnknownTicket
	}
	delete(r.pending, t)
	if confirmed != nil {
		r.items = r.replaceLocked(m.tempID, *confirmed)
	}
	r.gen++
	if len(r.pending) == 0 && !r.hasTempLocked() {
		r.env.Dirty = false
	}
	r.persistLocked()
	r.emitLocked(ReasonAck)
	return nil
}

// OnServerFailure records that the server did not confirm a mutation. The
// optimistic state stays visible and the collection stays LocalAhead.
func (r *Reconciler[T]) OnServerFailure(t Ticket, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[t]; !ok {
		return
	}
	delete(r.pending, t)
	r.env.Dirty = true
	r.log.Warn("reconcile: server rejected mutation", "ticket", uint64(t), "error", err)
	r.persistLocked()
	r.emitLocked(ReasonFailure)
}

// Generation identifies the current local revision. Pass it to
// OnBackgroundRevalidate so responses fetched before a later local
// mutation are discarded.
func (r *Reconciler[T]) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// OnBackgroundRevalidate offers a server snapshot fetched at generation gen
// with collection timestamp remoteTS (epoch ms). It reports whether the
// collection changed.
//
// The snapshot is ignored while a mutation is pending or when a local
// mutation landed after the fetch started. A clean collection takes the
// remote snapshot only when remoteTS is newer than the local envelope. A
// dirty collection whose remote side also moved since the last sync goes
// through the policy's conflict rule.
func (r *Reconciler[T]) OnBackgroundRevalidate(gen uint64, remote []T, remoteTS int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreLocked()
	if len(r.pending) > 0 || gen != r.gen {
		r.log.Debug("reconcile: discarding stale revalidation", "pending", len(r.pending), "gen", gen, "current", r.gen)
		return false
	}

	if !r.env.Dirty {
		if remoteTS <= r.env.TS {
			return false
		}
		r.items = cloneItems(remote)
		r.env.RemoteTS = remoteTS
		r.gen++
		r.persistLocked()
		r.emitLocked(ReasonRemote)
		return true
	}

	if remoteTS <= r.env.RemoteTS {
		// Only the local side moved since the last sync.
		return false
	}
	merged, localWon := r.policy.conflict()(r.policy,
		Side[T]{Items: cloneItems(r.items), TS: r.env.TS},
		Side[T]{Items: cloneItems(remote), TS: remoteTS},
	)
	r.items = merged
	r.env.RemoteTS = remoteTS
	r.env.Dirty = localWon
	r.gen++
	r.persistLocked()
	r.log.Info("reconcile: resolved conflict", "local_won", localWon, "count", len(merged))
	r.emitLocked(ReasonConflict)
	return true
}

// Revalidate fetches the remote snapshot and offers it to
// OnBackgroundRevalidate. Concurrent calls share one fetch. The remote
// timestamp is the newest item stamp. A snapshot without stamps is dated
// at the start of the fetch, unless it is empty and local edits are
// unconfirmed: an empty list never overrides those.
func (r *Reconciler[T]) Revalidate(ctx context.Context, fetch func(context.Context) ([]T, error)) (bool, error) {
	gen := r.Generation()
	started := r.now().UnixMilli()
	v, err, _ := r.flight.Do(r.name, func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return false, err
	}
	remote, _ := v.([]T)
	remoteTS := r.policy.CollectionStamp(remote)
	if remoteTS == 0 && (len(remote) > 0 || !r.Envelope().Dirty) {
		remoteTS = started
	}
	return r.OnBackgroundRevalidate(gen, remote, remoteTS), nil
}

// Reset clears memory and the Local Store entry, as on logout.
func (r *Reconciler[T]) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	r.env = store.Envelope{}
	r.pending = make(map[Ticket]mutation)
	r.gen++
	r.restored = true
	r.emitLocked(ReasonReset)
	return r.slot.Clear()
}

func (r *Reconciler[T]) replaceLocked(tempID string, confirmed T) []T {
	confirmedID := r.policy.ID(confirmed)
	target := tempID
	if target == "" {
		target = confirmedID
	}
	out := make([]T, 0, len(r.items))
	replaced := false
	for _, it := range r.items {
		id := r.policy.ID(it)
		switch {
		case id == target && !replaced:
			out = append(out, confirmed)
			replaced = true
		case id == confirmedID && confirmedID != target:
			// A revalidation already brought the durable item in.
			continue
		default:
			out = append(out, it)
		}
	}
	return out
}

func (r *Reconciler[T]) hasTempLocked() bool {
	for _, it := range r.items {
		if IsTemp(r.policy.ID(it)) {
			return true
		}
	}
	return false
}

func (r *Reconciler[T]) indexLocked(id string) int {
	for i, it := range r.items {
		if r.policy.ID(it) == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler[T]) persistLocked() {
	env, err := r.slot.SaveWith(r.itemsForSave(), store.Envelope{RemoteTS: r.env.RemoteTS, Dirty: r.env.Dirty})
	if err != nil {
		// Memory stays authoritative until a later save succeeds.
		r.log.Warn("reconcile: persist failed", "error", err)
		r.env.TS = r.now().UnixMilli()
		return
	}
	r.env.TS = env.TS
}

func (r *Reconciler[T]) itemsForSave() []T {
	if r.items == nil {
		return []T{}
	}
	return r.items
}

func (r *Reconciler[T]) emitLocked(reason Reason) {
	msg := Change{Name: r.name, Reason: reason, State: r.stateLocked(), Count: len(r.items)}
	select {
	case r.eventCh <- msg:
	default:
	}
}
