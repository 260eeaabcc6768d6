package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/kv"
)

func TestSession_SubscribeDeliversCurrent(t *testing.T) {
	ctx := context.Background()
	s, err := NewSession(ctx, kv.NewMemory())
	require.NoError(t, err)

	var seen []domain.Identity
	unsubscribe := s.Subscribe(func(id domain.Identity) { seen = append(seen, id) })
	require.Equal(t, []domain.Identity{domain.Guest}, seen)

	require.NoError(t, s.SignIn(ctx, "alice"))
	require.NoError(t, s.SignIn(ctx, "alice"))
	require.NoError(t, s.SignIn(ctx, "bob"))
	require.NoError(t, s.SignOut(ctx))
	assert.Equal(t, []domain.Identity{domain.Guest, domain.User("alice"), domain.User("bob"), domain.Guest}, seen)

	unsubscribe()
	unsubscribe()
	require.NoError(t, s.SignIn(ctx, "carol"))
	assert.Len(t, seen, 4)
}

func TestSession_Persists(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s, err := NewSession(ctx, mem)
	require.NoError(t, err)
	require.NoError(t, s.SignIn(ctx, "alice"))

	restored, err := NewSession(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, domain.User("alice"), restored.Current())

	require.NoError(t, restored.SignOut(ctx))
	again, err := NewSession(ctx, mem)
	require.NoError(t, err)
	assert.False(t, again.Current().Present())
}

func TestSession_PersistFailureKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s, err := NewSession(ctx, mem)
	require.NoError(t, err)

	calls := 0
	s.Subscribe(func(domain.Identity) { calls++ })
	mem.SetFailures(errors.New("read-only"), nil, nil)

	assert.Error(t, s.SignIn(ctx, "alice"))
	assert.False(t, s.Current().Present())
	assert.Equal(t, 1, calls)
}

func TestSession_RejectsInvalidUser(t *testing.T) {
	s, err := NewSession(context.Background(), nil)
	require.NoError(t, err)
	var vErr *domain.ValidationError
	assert.True(t, errors.As(s.SignIn(context.Background(), "a/b"), &vErr))
}

func TestSession_LoadFailure(t *testing.T) {
	mem := kv.NewMemory()
	mem.SetFailures(nil, errors.New("corrupt"), nil)
	_, err := NewSession(context.Background(), mem)
	assert.Error(t, err)
}
