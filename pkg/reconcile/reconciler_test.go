package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tableflip.dev/widgetsync/pkg/store"
)

type note struct {
	ID   string    `json:"id"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

var notePolicy = Policy[note]{
	ID:    func(n note) string { return n.ID },
	SetID: func(n note, id string) note { n.ID = id; return n },
	Stamp: func(n note) time.Time { return n.At },
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

const t0 = int64(1_700_000_000_000)

func newFixture(t *testing.T, rule ConflictRule[note]) (*Reconciler[note], *store.Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.UnixMilli(t0)}
	s := store.New(store.NewMemory(), store.WithClock(clk.Now))
	p := notePolicy
	p.Conflict = rule
	return New(store.NewSlot[[]note](s, store.KeyTodo), p), s, clk
}

func ids(items []note) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return strings.Join(out, ",")
}

func stored(t *testing.T, s *store.Store) ([]note, store.Envelope) {
	t.Helper()
	items, env, ok := store.NewSlot[[]note](s, store.KeyTodo).Load()
	if !ok {
		t.Fatalf("expected persisted envelope")
	}
	return items, env
}

func TestCreateIsVisibleBeforeAck(t *testing.T) {
	r, s, _ := newFixture(t, Coarse[note]())

	_, created := r.Create(note{Text: "Call mom"})
	if !strings.HasPrefix(created.ID, TempPrefix) {
		t.Fatalf("expected temp id, got %q", created.ID)
	}
	if got := ids(r.View()); got != created.ID {
		t.Fatalf("view = %q, want %q", got, created.ID)
	}
	items, env := stored(t, s)
	if ids(items) != created.ID {
		t.Fatalf("store = %q, want %q", ids(items), created.ID)
	}
	if !env.Dirty {
		t.Fatalf("expected dirty envelope")
	}
	if r.State() != LocalAhead {
		t.Fatalf("state = %v, want local-ahead", r.State())
	}
}

func TestExampleScenario(t *testing.T) {
	r, s, clk := newFixture(t, Coarse[note]())

	changed, err := r.Revalidate(context.Background(), func(context.Context) ([]note, error) {
		return []note{{ID: "1", Text: "Buy milk", At: time.UnixMilli(t0 - 500)}}, nil
	})
	if err != nil || !changed {
		t.Fatalf("revalidate changed=%v err=%v", changed, err)
	}
	items, env := stored(t, s)
	if ids(items) != "1" || env.TS < t0 {
		t.Fatalf("store = %q ts=%d", ids(items), env.TS)
	}

	clk.Advance(10 * time.Millisecond)
	ticket, created := r.Create(note{Text: "Call mom"})
	if got := r.View(); len(got) != 2 || !IsTemp(got[1].ID) {
		t.Fatalf("view after add = %q", ids(got))
	}

	confirmed := note{ID: "42", Text: "Call mom", At: clk.Now()}
	if err := r.OnServerAck(ticket, &confirmed); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := ids(r.View()); got != "1,42" {
		t.Fatalf("view after ack = %q", got)
	}
	items, env = stored(t, s)
	if ids(items) != "1,42" {
		t.Fatalf("store after ack = %q", ids(items))
	}
	if env.Dirty || r.State() != Synced {
		t.Fatalf("expected synced, dirty=%v state=%v", env.Dirty, r.State())
	}
	if _, ok := r.Find(created.ID); ok {
		t.Fatalf("temp id %q still present", created.ID)
	}
}

func TestRecencyMerge(t *testing.T) {
	r, _, clk := newFixture(t, Coarse[note]())
	r.OnBackgroundRevalidate(r.Generation(), []note{{ID: "1", Text: "local"}}, t0-1)
	localTS := r.Envelope().TS

	if r.OnBackgroundRevalidate(r.Generation(), []note{{ID: "1", Text: "older"}}, localTS) {
		t.Fatalf("remote with t2 <= t1 must not replace local")
	}
	if got := r.View()[0].Text; got != "local" {
		t.Fatalf("text = %q, want local", got)
	}

	clk.Advance(time.Second)
	if !r.OnBackgroundRevalidate(r.Generation(), []note{{ID: "1", Text: "newer"}}, localTS+1) {
		t.Fatalf("remote with t2 > t1 must replace local")
	}
	if got := r.View()[0].Text; got != "newer" {
		t.Fatalf("text = %q, want newer", got)
	}
}

func TestRevalidateDiscardedWhileMutationPending(t *testing.T) {
	r, _, _ := newFixture(t, Coarse[note]())
	ticket, _ := r.Create(note{Text: "draft"})

	if r.OnBackgroundRevalidate(r.Generation(), []note{{ID: "9"}}, t0+10_000) {
		t.Fatalf("revalidation applied while mutation pending")
	}
	if err := r.OnServerAck(ticket, &note{ID: "5", Text: "draft"}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := ids(r.View()); got != "5" {
		t.Fatalf("view = %q", got)
	}
}

func TestRevalidateSupersededByMutation(t *testing.T) {
	r, _, _ := newFixture(t, Coarse[note]())
	gen := r.Generation()
	ticket, _ := r.Create(note{Text: "draft"})
	if err := r.OnServerAck(ticket, nil); err != nil {
		t.Fatalf("ack: %v", err)
	}

	if r.OnBackgroundRevalidate(gen, []note{{ID: "9"}}, t0+10_000) {
		t.Fatalf("stale revalidation applied")
	}
}

func TestFailureKeepsLocalState(t *testing.T) {
	r, s, _ := newFixture(t, Coarse[note]())
	ticket, created := r.Create(note{Text: "offline"})
	r.OnServerFailure(ticket, errors.New("422"))

	if r.State() != LocalAhead || r.Pending() != 0 {
		t.Fatalf("state=%v pending=%d", r.State(), r.Pending())
	}
	if _, ok := r.Find(created.ID); !ok {
		t.Fatalf("optimistic item reverted")
	}
	if _, env := stored(t, s); !env.Dirty {
		t.Fatalf("dirty marker lost")
	}
	if err := r.OnServerAck(ticket, nil); !errors.Is(err, ErrUnknownTicket) {
		t.Fatalf("expected ErrUnknownTicket, got %v", err)
	}
}

func TestCoarseConflictKeepsNewerLocal(t *testing.T) {
	r, _, _ := newFixture(t, Coarse[note]())
	ticket, _ := r.Create(note{Text: "offline"})
	r.OnServerFailure(ticket, errors.New("boom"))
	localTS := r.Envelope().TS

	if !r.OnBackgroundRevalidate(r.Generation(), []note{{ID: "1"}}, localTS-1) {
		t.Fatalf("expected conflict resolution")
	}
	if got := r.View(); len(got) != 1 || !IsTemp(got[0].ID) {
		t.Fatalf("view = %q, want local", ids(got))
	}
	if r.State() != LocalAhead {
		t.Fatalf("local win must stay dirty")
	}
}

func TestMergeByIDConflict(t *testing.T) {
	r, _, clk := newFixture(t, MergeByID[note]())
	r.OnBackgroundRevalidate(r.Generation(), []note{
		{ID: "1", Text: "a", At: time.UnixMilli(t0 - 100)},
		{ID: "2", Text: "b", At: time.UnixMilli(t0 - 100)},
	}, t0-100)

	clk.Advance(time.Second)
	t1, _, ok := r.Update("1", func(n note) note {
		n.Text = "a-local"
		n.At = clk.Now()
		return n
	})
	if !ok {
		t.Fatalf("update missing item")
	}
	r.OnServerFailure(t1, errors.New("offline"))
	t2, _ := r.Create(note{Text: "new", At: clk.Now()})
	r.OnServerFailure(t2, errors.New("offline"))

	remote := []note{
		{ID: "1", Text: "a-remote", At: time.UnixMilli(t0 + 500)},
		{ID: "3", Text: "c", At: time.UnixMilli(t0 + 500)},
	}
	if !r.OnBackgroundRevalidate(r.Generation(), remote, t0+500) {
		t.Fatalf("expected merge")
	}
	got := r.View()
	if len(got) != 3 || got[0].Text != "a-local" || got[1].ID != "3" || !IsTemp(got[2].ID) {
		t.Fatalf("merged = %+v", got)
	}
	if r.State() != LocalAhead {
		t.Fatalf("surviving local edits must stay dirty")
	}
}

func TestRestoreMarksTempItemsDirty(t *testing.T) {
	r, s, _ := newFixture(t, Coarse[note]())
	r.Create(note{Text: "crash before ack"})

	again := New(store.NewSlot[[]note](s, store.KeyTodo), notePolicy)
	if got := again.View(); len(got) != 1 {
		t.Fatalf("restored %d items", len(got))
	}
	if again.State() != LocalAhead {
		t.Fatalf("state = %v", again.State())
	}
}

func TestDeleteAndReset(t *testing.T) {
	r, s, _ := newFixture(t, Coarse[note]())
	r.OnBackgroundRevalidate(r.Generation(), []note{{ID: "1"}, {ID: "2"}}, t0-1)

	ticket, ok := r.Delete("1")
	if !ok {
		t.Fatalf("delete missing item")
	}
	if got := ids(r.View()); got != "2" {
		t.Fatalf("view = %q", got)
	}
	if err := r.OnServerAck(ticket, nil); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, ok := r.Delete("nope"); ok {
		t.Fatalf("deleting unknown id should report false")
	}

	if err := r.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(r.View()) != 0 {
		t.Fatalf("reset left items")
	}
	if _, ok := s.Load(store.KeyTodo); ok {
		t.Fatalf("reset left envelope")
	}
}

func TestPersistFailureIsNotFatal(t *testing.T) {
	mem := store.NewMemory()
	r := New(store.NewSlot[[]note](store.New(mem), store.KeyTodo), notePolicy)
	mem.SetFailWrites(errors.New("quota"))

	_, created := r.Create(note{Text: "kept in memory"})
	if _, ok := r.Find(created.ID); !ok {
		t.Fatalf("in-memory view lost the item")
	}
}

func TestEventsReportTransitions(t *testing.T) {
	r, _, _ := newFixture(t, Coarse[note]())
	ticket, _ := r.Create(note{Text: "x"})
	_ = r.OnServerAck(ticket, &note{ID: "1"})

	want := []Reason{ReasonMutation, ReasonAck}
	for _, reason := range want {
		select {
		case ev := <-r.Events():
			if ev.Reason != reason {
				t.Fatalf("event %v, want %v", ev.Reason, reason)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %v event", reason)
		}
	}
}

func TestRevalidateReportsFetchError(t *testing.T) {
	r, _, _ := newFixture(t, Coarse[note]())
	boom := errors.New("down")
	if _, err := r.Revalidate(context.Background(), func(context.Context) ([]note, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRuleByName(t *testing.T) {
	for _, name := range []string{"", "coarse", "merge", "remote"} {
		if _, ok := RuleByName[note](name); !ok {
			t.Fatalf("rule %q not recognised", name)
		}
	}
	if _, ok := RuleByName[note]("newest"); ok {
		t.Fatalf("unknown rule accepted")
	}
}

func TestReloadPicksUpOtherWriter(t *testing.T) {
	r, s, clk := newFixture(t, Coarse[note]())
	first, _ := r.Create(note{Text: "mine"})
	r.OnServerFailure(first, errors.New("offline"))
	ticket, _ := r.Create(note{Text: "in flight"})

	other := New(store.NewSlot[[]note](s, store.KeyTodo), notePolicy)
	clk.Advance(time.Second)
	other.OnBackgroundRevalidate(other.Generation(), []note{{ID: "7", Text: "theirs"}}, t0+5_000)

	if r.Reload() {
		t.Fatalf("reload applied while a mutation is pending")
	}
	r.OnServerFailure(ticket, errors.New("offline"))
	if !r.Reload() {
		t.Fatalf("expected newer stored copy to load")
	}
	if got := ids(r.View()); got != "7" {
		t.Fatalf("view = %q", got)
	}
	if r.Reload() {
		t.Fatalf("second reload should be a no-op")
	}
}

func TestNilConflictRuleKeepsNewerLocal(t *testing.T) {
	r, _, clk := newFixture(t, nil)
	if _, err := r.Revalidate(context.Background(), func(context.Context) ([]note, error) {
		return []note{{ID: "1", At: time.UnixMilli(t0 - 500)}}, nil
	}); err != nil {
		t.Fatalf("revalidate: %v", err)
	}

	clk.Advance(10 * time.Millisecond)
	ticket, created := r.Create(note{Text: "offline"})
	r.OnServerFailure(ticket, errors.New("bad gateway"))

	older := []note{{ID: "1", At: time.UnixMilli(t0 + 5)}}
	r.OnBackgroundRevalidate(r.Generation(), older, t0+5)
	if got, want := ids(r.View()), "1,"+created.ID; got != want {
		t.Fatalf("view = %q, want %q", got, want)
	}
	if r.State() != LocalAhead {
		t.Fatalf("state = %v, want local-ahead", r.State())
	}

	newer := []note{{ID: "2", At: time.UnixMilli(t0 + 20)}}
	r.OnBackgroundRevalidate(r.Generation(), newer, t0+20)
	if got := ids(r.View()); got != "2" {
		t.Fatalf("view = %q, want the newer remote", got)
	}
}

func TestEmptySnapshotClearsCleanCollection(t *testing.T) {
	r, s, clk := newFixture(t, Coarse[note]())
	if _, err := r.Revalidate(context.Background(), func(context.Context) ([]note, error) {
		return []note{{ID: "1", At: time.UnixMilli(t0 - 500)}}, nil
	}); err != nil {
		t.Fatalf("revalidate: %v", err)
	}

	clk.Advance(time.Second)
	changed, err := r.Revalidate(context.Background(), func(context.Context) ([]note, error) {
		return []note{}, nil
	})
	if err != nil || !changed {
		t.Fatalf("revalidate changed=%v err=%v", changed, err)
	}
	if got := r.View(); len(got) != 0 {
		t.Fatalf("view = %q, want empty", ids(got))
	}
	if _, env := stored(t, s); env.RemoteTS != t0+1000 {
		t.Fatalf("remoteTs = %d, want %d", env.RemoteTS, t0+1000)
	}
}

func TestEmptySnapshotKeepsUnconfirmedItems(t *testing.T) {
	r, _, clk := newFixture(t, Coarse[note]())
	ticket, created := r.Create(note{Text: "offline"})
	r.OnServerFailure(ticket, errors.New("down"))

	clk.Advance(time.Second)
	changed, err := r.Revalidate(context.Background(), func(context.Context) ([]note, error) {
		return nil, nil
	})
	if err != nil || changed {
		t.Fatalf("revalidate changed=%v err=%v", changed, err)
	}
	if got := ids(r.View()); got != created.ID {
		t.Fatalf("view = %q, want %q", got, created.ID)
	}
}

func TestResendBindsTicketToTempID(t *testing.T) {
	r, _, _ := newFixture(t, Coarse[note]())
	ticket, created := r.Create(note{Text: "offline"})
	if _, _, ok := r.Resend(created.ID); ok {
		t.Fatalf("resend allowed while the create is in flight")
	}
	if n := len(r.Unconfirmed()); n != 0 {
		t.Fatalf("unconfirmed = %d while in flight", n)
	}
	r.OnServerFailure(ticket, errors.New("down"))

	if got := r.Unconfirmed(); len(got) != 1 || got[0].ID != created.ID {
		t.Fatalf("unconfirmed = %q", ids(got))
	}
	retry, item, ok := r.Resend(created.ID)
	if !ok || item.Text != "offline" {
		t.Fatalf("resend ok=%v item=%+v", ok, item)
	}
	if err := r.OnServerAck(retry, &note{ID: "9", Text: "offline"}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := ids(r.View()); got != "9" {
		t.Fatalf("view = %q, want 9", got)
	}
	if r.State() != Synced {
		t.Fatalf("state = %v, want synced", r.State())
	}
	if _, _, ok := r.Resend("9"); ok {
		t.Fatalf("resend of a durable id")
	}
}
