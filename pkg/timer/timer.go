// Package timer binds the timer widget to /api/timer-tasks. At most one task
// in the tree runs at a time, and cross-window creation requests are
// persisted in a pending slot until the server confirms them.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tableflip.dev/widgetsync/pkg/channel"
	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
	"tableflip.dev/widgetsync/pkg/timeutil"
)

// Path is the REST collection endpoint.
const Path = "/api/timer-tasks"

// DefaultPoll is the revalidation cadence used by Poll when none is given.
const DefaultPoll = 5 * time.Second

var (
	// ErrDuplicateRequest is returned for a request key already applied in
	// this process.
	ErrDuplicateRequest = errors.New("timer: duplicate task request")
	// ErrNoUser is returned by Refresh when no user is signed in.
	ErrNoUser = errors.New("timer: no user")
)

// Policy is the reconcile policy for tasks. A diverged collection follows
// plain recency: the server copy wins only when it is newer than the local
// edit, so a failed start is not undone by an older snapshot.
func Policy() reconcile.Policy[Task] {
	return reconcile.Policy[Task]{
		ID:       func(t Task) string { return t.ID },
		SetID:    func(t Task, id string) Task { t.ID = id; return t },
		Stamp:    func(t Task) time.Time { return t.UpdatedAt },
		IDPrefix: reconcile.TempPrefix,
		Conflict: reconcile.Coarse[Task](),
	}
}

// stateUpdate is the PUT body for run-state changes.
type stateUpdate struct {
	ID          string `json:"id"`
	IsRunning   bool   `json:"isRunning"`
	IsPaused    *bool  `json:"isPaused,omitempty"`
	StartTime   *int64 `json:"startTime"`
	ElapsedTime int64  `json:"elapsedTime"`
}

type createBody struct {
	Name             string   `json:"name"`
	UserID           string   `json:"userId,omitempty"`
	CategoryPath     string   `json:"categoryPath"`
	Date             string   `json:"date"`
	InitialTime      int64    `json:"initialTime"`
	ElapsedTime      int64    `json:"elapsedTime"`
	InstanceTagNames []string `json:"instanceTagNames"`
	IsRunning        bool     `json:"isRunning"`
	StartTime        int64    `json:"startTime"`
	ParentID         string   `json:"parentId,omitempty"`
}

// Widget is the timer.
type Widget struct {
	rec     *reconcile.Reconciler[Task]
	remote  remote.Collection[Task]
	pending store.Slot[channel.TaskRequest]
	userID  func() string
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	applied  map[string]struct{}
	replayed bool
}

// New creates the timer widget. userID supplies the signed-in user for the
// collection query and for requests that do not name one.
func New(s *store.Store, c *remote.Client, userID func() string, log *slog.Logger) *Widget {
	if log == nil {
		log = slog.Default()
	}
	if userID == nil {
		userID = func() string { return "" }
	}
	log = log.With("widget", "timer")
	w := &Widget{
		rec:     reconcile.New(store.NewSlot[[]Task](s, store.KeyTimer), Policy(), reconcile.WithLogger(log)),
		pending: store.NewSlot[channel.TaskRequest](s, store.KeyPendingTask),
		userID:  userID,
		log:     log,
		now:     s.Now,
		applied: make(map[string]struct{}),
	}
	w.remote = remote.NewCollection[Task](c, Path)
	w.remote.Query = func() url.Values {
		return url.Values{"userId": {w.userID()}, "date": {timeutil.Date(w.now())}}
	}
	return w
}

// Reconciler exposes the underlying reconciler.
func (w *Widget) Reconciler() *reconcile.Reconciler[Task] { return w.rec }

// Tasks returns the task tree.
func (w *Widget) Tasks() []Task { return w.rec.View() }

// Active returns the running task.
func (w *Widget) Active() (Task, bool) { return Running(w.rec.View()) }

// Refresh revalidates today's tasks for the signed-in user.
func (w *Widget) Refresh(ctx context.Context) (bool, error) {
	if w.userID() == "" {
		return false, ErrNoUser
	}
	changed, err := w.rec.Revalidate(ctx, w.remote.List)
	if err != nil {
		return false, fmt.Errorf("timer: refresh: %w", err)
	}
	return changed, nil
}

// Poll refreshes every interval until ctx is done. Failures are logged.
func (w *Widget) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPoll
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		if _, err := w.Refresh(ctx); err != nil && !errors.Is(err, ErrNoUser) && ctx.Err() == nil {
			w.log.Warn("timer: poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// Start runs the task with id, stopping whichever task was running and
// crediting its elapsed time.
func (w *Widget) Start(ctx context.Context, id string) (Task, error) {
	current, ok := findID(w.rec.View(), id)
	if !ok {
		return Task{}, fmt.Errorf("timer: no task %q", id)
	}
	if current.IsRunning {
		return current, nil
	}
	now := w.now()
	var (
		target  Task
		stopped []Task
	)
	ticket := w.rec.ApplyLocalMutation(func(items []Task) []Task {
		target, stopped = Task{}, nil
		return mapTree(items, func(t Task) Task {
			switch {
			case t.ID == id:
				t = t.started(now)
				target = t
			case t.IsRunning:
				t = t.stopped(now)
				stopped = append(stopped, t)
			}
			return t
		})
	})
	if target.ID == "" {
		_ = w.rec.OnServerAck(ticket, nil)
		return Task{}, fmt.Errorf("timer: no task %q", id)
	}

	updates := stopUpdates(stopped)
	if !reconcile.IsTemp(target.ID) {
		paused := false
		updates = append(updates, stateUpdate{ID: target.ID, IsRunning: true, IsPaused: &paused, StartTime: target.StartTime, ElapsedTime: target.ElapsedTime})
	}
	if err := w.put(ctx, updates); err != nil {
		w.rec.OnServerFailure(ticket, err)
		return target, fmt.Errorf("timer: start: %w", err)
	}
	_ = w.rec.OnServerAck(ticket, nil)
	return target, nil
}

// Pause stops the task with id and marks it paused.
func (w *Widget) Pause(ctx context.Context, id string) (Task, error) {
	current, ok := findID(w.rec.View(), id)
	if !ok {
		return Task{}, fmt.Errorf("timer: no task %q", id)
	}
	if !current.IsRunning {
		return current, nil
	}
	now := w.now()
	var target Task
	ticket := w.rec.ApplyLocalMutation(func(items []Task) []Task {
		return mapTree(items, func(t Task) Task {
			if t.ID == id && t.IsRunning {
				t = t.stopped(now)
				t.IsPaused = true
				target = t
			}
			return t
		})
	})
	if target.ID == "" || reconcile.IsTemp(target.ID) {
		_ = w.rec.OnServerAck(ticket, nil)
		return target, nil
	}
	paused := true
	err := w.put(ctx, []stateUpdate{{ID: target.ID, IsRunning: false, IsPaused: &paused, ElapsedTime: target.ElapsedTime}})
	if err != nil {
		w.rec.OnServerFailure(ticket, err)
		return target, fmt.Errorf("timer: pause: %w", err)
	}
	_ = w.rec.OnServerAck(ticket, nil)
	return target, nil
}

// Create applies a task-creation request: the request is persisted to the
// pending slot, running tasks are stopped, and the new task is shown
// running before the server is asked to create it. A request whose key was
// already applied in this process returns ErrDuplicateRequest.
func (w *Widget) Create(ctx context.Context, req channel.TaskRequest) (Task, error) {
	now := w.now()
	req = w.normalize(channel.Stamp(req, now), now)
	if err := req.Validate(); err != nil {
		return Task{}, err
	}
	key := req.Key()
	w.mu.Lock()
	if _, dup := w.applied[key]; dup {
		w.mu.Unlock()
		return Task{}, ErrDuplicateRequest
	}
	w.applied[key] = struct{}{}
	w.mu.Unlock()

	if _, err := w.pending.Save(req); err != nil {
		w.log.Warn("timer: persist pending request failed", "request", key, "error", err)
	}

	var stopped []Task
	ticket, task := w.rec.CreateWith(Task{
		Name:             req.Name,
		UserID:           req.UserID,
		CategoryPath:     req.CategoryPath,
		Date:             req.Date,
		InitialTime:      req.InitialTime,
		ElapsedTime:      req.InitialTime,
		InstanceTagNames: []string(req.InstanceTagNames),
		ParentID:         req.ParentID,
	}.started(now), func(items []Task) []Task {
		stopped = nil
		return mapTree(items, func(t Task) Task {
			if t.IsRunning {
				t = t.stopped(now)
				stopped = append(stopped, t)
			}
			return t
		})
	})

	if err := w.put(ctx, stopUpdates(stopped)); err != nil {
		w.log.Warn("timer: stopping previous task failed", "error", err)
	}

	tags := []string(req.InstanceTagNames)
	if tags == nil {
		tags = []string{}
	}
	created, err := w.remote.Create(ctx, createBody{
		Name:             req.Name,
		UserID:           req.UserID,
		CategoryPath:     req.CategoryPath,
		Date:             req.Date,
		InitialTime:      req.InitialTime,
		ElapsedTime:      req.InitialTime,
		InstanceTagNames: tags,
		IsRunning:        true,
		StartTime:        *task.StartTime,
		ParentID:         req.ParentID,
	})
	if err == nil && created.ID == "" {
		err = errors.New("server returned no id")
	}
	if err != nil {
		w.rec.OnServerFailure(ticket, err)
		return task, fmt.Errorf("timer: create: %w", err)
	}
	w.clearPending(key)
	if created.Name == "" {
		created.Name = task.Name
	}
	if created.StartTime == nil && !created.IsRunning {
		created.IsRunning, created.StartTime = true, task.StartTime
	}
	if created.UpdatedAt.IsZero() {
		created.UpdatedAt = task.UpdatedAt
	}
	_ = w.rec.OnServerAck(ticket, &created)
	return created, nil
}

// Handle is the channel consumer. Server failures are not returned: the
// optimistic task and the pending slot already cover them, and redelivery
// would only duplicate the task.
func (w *Widget) Handle(ctx context.Context, req channel.TaskRequest) error {
	_, err := w.Create(ctx, req)
	switch {
	case err == nil, errors.Is(err, ErrDuplicateRequest):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		w.log.Warn("timer: task request failed", "request", req.Key(), "error", err)
		return nil
	}
}

// ReplayPending replays a request left in the pending slot by a previous
// run. It runs at most once per Widget and clears the slot whatever the
// outcome.
func (w *Widget) ReplayPending(ctx context.Context) (bool, error) {
	w.mu.Lock()
	if w.replayed {
		w.mu.Unlock()
		return false, nil
	}
	w.replayed = true
	w.mu.Unlock()

	req, _, ok := w.pending.Load()
	if !ok {
		return false, nil
	}
	defer func() {
		if err := w.pending.Clear(); err != nil {
			w.log.Warn("timer: clear pending request failed", "error", err)
		}
	}()
	w.log.Info("timer: replaying pending task request", "request", req.Key(), "name", req.Name)
	if _, err := w.Create(ctx, req); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			return false, nil
		}
		return true, err
	}
	return true, nil
}

// PendingRequest returns the request waiting in the pending slot.
func (w *Widget) PendingRequest() (channel.TaskRequest, bool) {
	req, _, ok := w.pending.Load()
	return req, ok
}

// Reset clears the widget's memory and storage.
func (w *Widget) Reset() error {
	w.mu.Lock()
	w.applied = make(map[string]struct{})
	w.mu.Unlock()
	return errors.Join(w.rec.Reset(), w.pending.Clear())
}

func (w *Widget) normalize(req channel.TaskRequest, now time.Time) channel.TaskRequest {
	req.Name = strings.TrimSpace(req.Name)
	if req.UserID == "" {
		req.UserID = w.userID()
	}
	if strings.TrimSpace(req.CategoryPath) == "" {
		req.CategoryPath = DefaultCategory
	}
	if req.Date == "" {
		req.Date = timeutil.Date(now)
	}
	return req
}

func (w *Widget) clearPending(key string) {
	current, _, ok := w.pending.Load()
	if !ok || current.Key() != key {
		return
	}
	if err := w.pending.Clear(); err != nil {
		w.log.Warn("timer: clear pending request failed", "error", err)
	}
}

// put sends the updates concurrently, skipping unconfirmed tasks.
func (w *Widget) put(ctx context.Context, updates []stateUpdate) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range updates {
		if reconcile.IsTemp(u.ID) {
			continue
		}
		g.Go(func() error {
			_, _, err := w.remote.Update(ctx, u)
			return err
		})
	}
	return g.Wait()
}

func stopUpdates(stopped []Task) []stateUpdate {
	out := make([]stateUpdate, 0, len(stopped))
	for _, t := range stopped {
		out = append(out, stateUpdate{ID: t.ID, IsRunning: false, ElapsedTime: t.ElapsedTime})
	}
	return out
}
