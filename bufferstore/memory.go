package bufferstore

import (
	"context"
	"sync"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
)

// Memory keeps payloads in a map. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) StoreBuffer(_ context.Context, meta buffer.Meta, payload []byte) error {
	key := Key(meta)
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if ok {
		return nil
	}
	obj, err := encodeObject(meta, payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()
	return nil
}

func (m *Memory) CreateLoader(_ context.Context, meta buffer.Meta) (buffer.Loader, error) {
	return newLazyLoader(meta, m.fetch), nil
}

func (m *Memory) fetch(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, errors.NotFound(errors.PhaseStore, "buffer", key)
	}
	return obj, nil
}

// Len returns the number of stored buffers.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *Memory) Close() error { return nil }
