package kv

import (
	"context"
	"sync"
)

// Memory is an in-memory Storage. Failures and slow writes can be injected
// through the exported hooks.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	saves  int

	// FailSave, FailLoad and FailRemove, when set, are returned by the
	// corresponding operation.
	FailSave   error
	FailLoad   error
	FailRemove error

	// BeforeSave runs before a value is stored, outside the lock.
	BeforeSave func(key string, value []byte)
	// BeforeLoad runs before a value is read, outside the lock.
	BeforeLoad func(key string)
}

// NewMemory returns an empty Memory storage.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Save(ctx context.Context, key string, value []byte) error {
	if hook := m.beforeSave(); hook != nil {
		hook(key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.values[key] = append([]byte(nil), value...)
	m.saves++
	return nil
}

func (m *Memory) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	hook := m.BeforeLoad
	m.mu.Unlock()
	if hook != nil {
		hook(key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoad != nil {
		return nil, false, m.FailLoad
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRemove != nil {
		return m.FailRemove
	}
	delete(m.values, key)
	return nil
}

// SetFailures replaces the injected failures under the lock.
func (m *Memory) SetFailures(save, load, remove error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailSave, m.FailLoad, m.FailRemove = save, load, remove
}

// Saves returns the number of successful saves.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) beforeSave() func(string, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BeforeSave
}
