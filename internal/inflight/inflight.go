// Package inflight rejects a second mutation of the same request by the same
// user while the first is still running. Racing writes from different users
// are not coordinated here; the store applies them last-write-wins.
package inflight

import (
	"context"
	"errors"
	"sync"
)

var ErrBusy = errors.New("mutation already in flight")

type Guard interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

func Key(userID, requestID string) string {
	return userID + ":" + requestID
}

type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrBusy
	}
	m.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
