// Package session holds the signed-in user's token and identity in the
// Local Store, and supplies them to the remote client.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tableflip.dev/widgetsync/pkg/store"
)

// ErrSignedOut is returned by operations that need a signed-in user.
var ErrSignedOut = errors.New("session: not signed in")

// User is the signed-in account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// State is what is persisted under store.KeySession.
type State struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Manager reads and writes the session slot.
type Manager struct {
	slot store.Slot[State]
	log  *slog.Logger

	mu     sync.RWMutex
	state  State
	loaded bool
}

// New binds a Manager to s.
func New(s *store.Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{slot: store.NewSlot[State](s, store.KeySession), log: log}
}

func (m *Manager) load() State {
	m.mu.RLock()
	if m.loaded {
		st := m.state
		m.mu.RUnlock()
		return st
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		st, _, _ := m.slot.Load()
		m.state = st
		m.loaded = true
	}
	return m.state
}

// Current returns the session state.
func (m *Manager) Current() State {
	return m.load()
}

// Token implements remote.TokenSource.
func (m *Manager) Token() string {
	return m.load().Token
}

// UserID returns the signed-in user's id, or "" when signed out.
func (m *Manager) UserID() string {
	if u := m.load().User; u != nil {
		return u.ID
	}
	return ""
}

// SignedIn reports whether a token is stored.
func (m *Manager) SignedIn() bool {
	return m.Token() != ""
}

// Login stores token and user.
func (m *Manager) Login(token string, user User) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session: token required")
	}
	st := State{Token: token}
	if user.ID != "" || user.Email != "" || user.Name != "" {
		u := user
		st.User = &u
	}
	if _, err := m.slot.Save(st); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	m.mu.Lock()
	m.state = st
	m.loaded = true
	m.mu.Unlock()
	m.log.Info("session: signed in", "user", user.ID)
	return nil
}

// Logout forgets the session and clears every widget key.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.state = State{}
	m.loaded = true
	m.mu.Unlock()

	var errs []error
	for _, key := range store.WidgetKeys {
		if err := m.slot.Store.Clear(key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	m.log.Info("session: signed out")
	return nil
}

// DeviceID returns the persisted install id, generating and storing one on
// first use.
func DeviceID(s *store.Store) (string, error) {
	slot := store.NewSlot[string](s, store.KeyDeviceID)
	if id, _, ok := slot.Load(); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if _, err := slot.Save(id); err != nil {
		return id, fmt.Errorf("session: save device id: %w", err)
	}
	return id, nil
}
