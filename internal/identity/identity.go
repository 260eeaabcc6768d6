// Package identity supplies the signed-in user to the sync engine.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/kv"
)

// SessionKey is the storage key of the persisted session.
const SessionKey = "session"

// Provider reports identity changes. Subscribe delivers the current identity
// synchronously before returning, then every later change.
type Provider interface {
	Subscribe(fn func(domain.Identity)) (unsubscribe func())
}

// Session is a Provider whose identity is changed explicitly and, when
// storage is set, survives restarts.
type Session struct {
	storage kv.Storage

	mu       sync.Mutex
	current  domain.Identity
	next     int
	watchers map[int]func(domain.Identity)
}

// NewSession returns a session restored from storage (guest when nothing is
// stored). storage may be nil.
func NewSession(ctx context.Context, storage kv.Storage) (*Session, error) {
	s := &Session{storage: storage, watchers: make(map[int]func(domain.Identity))}
	if storage == nil {
		return s, nil
	}
	var saved domain.Identity
	if _, err := kv.LoadJSON(ctx, storage, SessionKey, &saved); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.current = saved
	return s, nil
}

// Current returns the signed-in identity.
func (s *Session) Current() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe implements Provider. Notifications are delivered in change
// order while the session is locked, so fn must not call back into s.
func (s *Session) Subscribe(fn func(domain.Identity)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = fn
	current := s.current
	// Holding the lock across the initial delivery keeps a concurrent
	// change from being observed before it.
	fn(current)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// SignIn makes userID the current identity.
func (s *Session) SignIn(ctx context.Context, userID string) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	return s.set(ctx, domain.User(userID))
}

// SignOut returns the session to guest.
func (s *Session) SignOut(ctx context.Context) error {
	return s.set(ctx, domain.Guest)
}

func (s *Session) set(ctx context.Context, next domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == next {
		return nil
	}
	if s.storage != nil {
		var err error
		if next.Present() {
			err = kv.SaveJSON(ctx, s.storage, SessionKey, next)
		} else {
			err = s.storage.Remove(ctx, SessionKey)
		}
		if err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}
	s.current = next
	for _, fn := range s.sortedWatchers() {
		fn(next)
	}
	return nil
}

func (s *Session) sortedWatchers() []func(domain.Identity) {
	out := make([]func(domain.Identity), 0, len(s.watchers))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.watchers[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
