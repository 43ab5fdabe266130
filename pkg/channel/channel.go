package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned when publishing to a closed channel.
var ErrClosed = errors.New("channel: closed")

// Handler processes one request. A non-nil error leaves the request for
// redelivery where the transport supports it.
type Handler func(ctx context.Context, req TaskRequest) error

// Publisher sends requests.
type Publisher interface {
	Publish(ctx context.Context, req TaskRequest) error
}

// Subscriber delivers requests to h until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}

// Stamp fills in the request id and timestamp when the sender left them
// empty.
func Stamp(req TaskRequest, now time.Time) TaskRequest {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Timestamp == 0 {
		req.Timestamp = now.UnixMilli()
	}
	return req
}

// Memory is an in-process channel.
type Memory struct {
	ch    chan TaskRequest
	done  chan struct{}
	close sync.Once
	log   *slog.Logger
}

// NewMemory creates an in-process channel buffering up to size requests.
func NewMemory(size int, log *slog.Logger) *Memory {
	if log == nil {
		log = slog.Default()
	}
	return &Memory{
		ch:   make(chan TaskRequest, size),
		done: make(chan struct{}),
		log:  log,
	}
}

// Publish enqueues req, blocking while the buffer is full.
func (m *Memory) Publish(ctx context.Context, req TaskRequest) error {
	req = Stamp(req, time.Now())
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- req:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe delivers requests until ctx is done or the channel is closed.
// Failed requests are requeued once.
func (m *Memory) Subscribe(ctx context.Context, h Handler) error {
	retried := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case req := <-m.ch:
			if err := h(ctx, req); err != nil {
				m.log.Warn("channel: handler failed", "request", req.Key(), "error", err)
				if _, again := retried[req.Key()]; !again {
					retried[req.Key()] = struct{}{}
					select {
					case m.ch <- req:
					default:
					}
				}
			}
		}
	}
}

// Close stops subscribers and rejects further publishes.
func (m *Memory) Close() {
	m.close.Do(func() { close(m.done) })
}

var (
	_ Publisher  = (*Memory)(nil)
	_ Subscriber = (*Memory)(nil)
	_ Publisher  = (*Inbox)(nil)
	_ Subscriber = (*Inbox)(nil)
)
