// Package chat syncs AI chat sessions with /api/widget/ai/sessions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tableflip.dev/widgetsync/pkg/reconcile"
	"tableflip.dev/widgetsync/pkg/remote"
	"tableflip.dev/widgetsync/pkg/store"
)

// Path is the REST collection endpoint.
const Path = "/api/widget/ai/sessions"

const (
	// DefaultTitle names sessions without a user message.
	DefaultTitle = "New chat"
	titleRunes   = 20
)

// Part is one typed fragment of a message.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one chat turn.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Text returns the message content, falling back to its first text part.
func (m Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// Session is a saved conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Title derives a session title from the first user message.
func Title(messages []Message) string {
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		text := strings.TrimSpace(m.Text())
		if text == "" {
			break
		}
		if r := []rune(text); len(r) > titleRunes {
			return string(r[:titleRunes])
		}
		return text
	}
	return DefaultTitle
}

// Policy is the reconcile policy for sessions.
func Policy(rule reconcile.ConflictRule[Session]) reconcile.Policy[Session] {
	return reconcile.Policy[Session]{
		ID:       func(s Session) string { return s.ID },
		SetID:    func(s Session, id string) Session { s.ID = id; return s },
		Stamp:    func(s Session) time.Time { return s.UpdatedAt },
		IDPrefix: reconcile.LocalPrefix,
		Conflict: rule,
	}
}

type saveBody struct {
	ID       *string   `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Widget is the chat history.
type Widget struct {
	rec    *reconcile.Reconciler[Session]
	remote remote.Collection[Session]
	log    *slog.Logger
	now    func() time.Time
}

// New creates the chat widget.
func New(s *store.Store, c *remote.Client, rule reconcile.ConflictRule[Session], log *slog.Logger) *Widget {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("widget", "chat")
	return &Widget{
		rec:    reconcile.New(store.NewSlot[[]Session](s, store.KeyChat), Policy(rule), reconcile.WithLogger(log)),
		remote: remote.NewCollection[Session](c, Path),
		log:    log,
		now:    s.Now,
	}
}

// Reconciler exposes the underlying reconciler.
func (w *Widget) Reconciler() *reconcile.Reconciler[Session] { return w.rec }

// Sessions lists the saved sessions.
func (w *Widget) Sessions() []Session { return w.rec.View() }

// Get returns one session.
func (w *Widget) Get(id string) (Session, bool) { return w.rec.Find(id) }

// Refresh revalidates against the server.
func (w *Widget) Refresh(ctx context.Context) (bool, error) {
	changed, err := w.rec.Revalidate(ctx, w.remote.List)
	if err != nil {
		return false, fmt.Errorf("chat: refresh: %w", err)
	}
	return changed, nil
}

// Save upserts the session: unknown or empty ids create a session with a
// local id, known ids are replaced. The server copy replaces the local one
// once the POST succeeds.
func (w *Widget) Save(ctx context.Context, sess Session) (Session, error) {
	if len(sess.Messages) == 0 {
		return sess, errors.New("chat: session has no messages")
	}
	if renamed, ok := w.Resend(ctx)[sess.ID]; ok {
		sess.ID = renamed
	}
	sess.Title = Title(sess.Messages)
	sess.UpdatedAt = w.now().UTC()

	var ticket reconcile.Ticket
	if _, exists := w.rec.Find(sess.ID); exists && sess.ID != "" {
		ticket, sess, _ = w.rec.Update(sess.ID, func(Session) Session { return sess })
	} else {
		if !reconcile.IsTemp(sess.ID) {
			sess.ID = ""
		}
		ticket, sess = w.rec.Create(sess)
	}
	saved, err := w.push(ctx, ticket, sess)
	if err != nil {
		return sess, fmt.Errorf("chat: save: %w", err)
	}
	return saved, nil
}

// Resend creates every session still holding a local id on the server and
// returns the local to durable id mapping of the sessions that made it.
func (w *Widget) Resend(ctx context.Context) map[string]string {
	renamed := map[string]string{}
	for _, it := range w.rec.Unconfirmed() {
		ticket, sess, ok := w.rec.Resend(it.ID)
		if !ok {
			continue
		}
		saved, err := w.push(ctx, ticket, sess)
		if err != nil {
			w.log.Warn("chat: resend failed", "id", sess.ID, "error", err)
			break
		}
		if saved.ID != sess.ID {
			renamed[sess.ID] = saved.ID
		}
	}
	return renamed
}

// push POSTs sess and settles ticket with the answer.
func (w *Widget) push(ctx context.Context, ticket reconcile.Ticket, sess Session) (Session, error) {
	body := saveBody{Title: sess.Title, Messages: sess.Messages}
	if !reconcile.IsTemp(sess.ID) {
		id := sess.ID
		body.ID = &id
	}
	confirmed, err := w.remote.Create(ctx, body)
	if err != nil {
		w.rec.OnServerFailure(ticket, err)
		return sess, err
	}
	if confirmed.ID == "" {
		// Some deployments answer with a bare status object.
		_ = w.rec.OnServerAck(ticket, nil)
		return sess, nil
	}
	if confirmed.Messages == nil {
		confirmed.Messages = sess.Messages
	}
	if confirmed.Title == "" {
		confirmed.Title = sess.Title
	}
	if confirmed.UpdatedAt.IsZero() {
		confirmed.UpdatedAt = sess.UpdatedAt
	}
	_ = w.rec.OnServerAck(ticket, &confirmed)
	return confirmed, nil
}

// Delete removes a session.
func (w *Widget) Delete(ctx context.Context, id string) error {
	ticket, ok := w.rec.Delete(id)
	if !ok {
		return fmt.Errorf("chat: no session %q", id)
	}
	if reconcile.IsTemp(id) {
		_ = w.rec.OnServerAck(ticket, nil)
		return nil
	}
	if err := w.remote.Delete(ctx, id); err != nil {
		w.rec.OnServerFailure(ticket, err)
		return fmt.Errorf("chat: delete: %w", err)
	}
	_ = w.rec.OnServerAck(ticket, nil)
	return nil
}

// Reset clears the widget's memory and storage.
func (w *Widget) Reset() error { return w.rec.Reset() }
