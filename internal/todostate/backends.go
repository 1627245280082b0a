package todostate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// StateBackend is a durable key-value namespace holding the persisted
// partitions. Get returns nil for an absent key. Clear drops every key and
// is idempotent; clearing an empty namespace is not an error.
type StateBackend interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Clear() error
}

type stateBackendCloser interface {
	Close() error
}

// InMemoryStateBackend keeps the namespace in process memory. Used by tests
// and as the fallback when no DSN is configured.
type InMemoryStateBackend struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewInMemoryStateBackend() *InMemoryStateBackend {
	return &InMemoryStateBackend{values: map[string][]byte{}}
}

func (b *InMemoryStateBackend) Get(key string) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[key]
	if !ok {
		return nil, nil
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	return clone, nil
}

func (b *InMemoryStateBackend) Set(key string, value []byte) error {
	if b == nil || strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	b.mu.Lock()
	b.values[key] = clone
	b.mu.Unlock()
	return nil
}

func (b *InMemoryStateBackend) Clear() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	b.values = map[string][]byte{}
	b.mu.Unlock()
	return nil
}

// JSONFileStateBackend stores the namespace as a single JSON document,
// written atomically via rename.
type JSONFileStateBackend struct {
	Path string

	mu sync.Mutex
}

func NewJSONFileStateBackend(path string) *JSONFileStateBackend {
	return &JSONFileStateBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileStateBackend) Get(key string) ([]byte, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	values, err := b.readLocked()
	if err != nil {
		return nil, err
	}
	value, ok := values[key]
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (b *JSONFileStateBackend) Set(key string, value []byte) error {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	values, err := b.readLocked()
	if err != nil {
		return err
	}
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	values[key] = json.RawMessage(value)
	return b.writeLocked(values)
}

func (b *JSONFileStateBackend) Clear() error {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *JSONFileStateBackend) readLocked() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (b *JSONFileStateBackend) writeLocked(values map[string]json.RawMessage) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}
