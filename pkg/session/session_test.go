package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/widgetsync/pkg/store"
)

func TestLoginPersistsAcrossManagers(t *testing.T) {
	s := store.New(store.NewMemory())
	m := New(s, nil)
	assert.False(t, m.SignedIn())

	require.NoError(t, m.Login(" tok ", User{ID: "u1", Email: "a@b.c"}))

	again := New(s, nil)
	assert.Equal(t, "tok", again.Token())
	assert.Equal(t, "u1", again.UserID())
}

func TestLoginRequiresToken(t *testing.T) {
	m := New(store.New(store.NewMemory()), nil)
	assert.Error(t, m.Login("  ", User{ID: "u1"}))
}

func TestLogoutClearsWidgetKeysButKeepsDevice(t *testing.T) {
	s := store.New(store.NewMemory())
	m := New(s, nil)
	require.NoError(t, m.Login("tok", User{ID: "u1"}))

	for _, key := range []string{store.KeyTodo, store.KeyMemo, store.KeyPendingTask} {
		_, err := store.NewSlot[[]string](s, key).Save([]string{"x"})
		require.NoError(t, err)
	}
	device, err := DeviceID(s)
	require.NoError(t, err)

	require.NoError(t, m.Logout())

	assert.Equal(t, "", m.Token())
	for _, key := range store.WidgetKeys {
		_, ok := s.Load(key)
		assert.False(t, ok, "key %s survived logout", key)
	}
	again, err := DeviceID(s)
	require.NoError(t, err)
	assert.Equal(t, device, again)
}

func TestDeviceIDIsStable(t *testing.T) {
	s := store.New(store.NewMemory())
	first, err := DeviceID(s)
	require.NoError(t, err)
	require.Len(t, first, 36)

	second, err := DeviceID(s)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
