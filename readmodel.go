package academic

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ReadModelStore is the keyed storage a projection writes its read model to.
// Upsert and Delete make projection updates idempotent.
type ReadModelStore[T any] interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (T, bool, error)

	// Upsert stores value under key, replacing any previous value.
	Upsert(ctx context.Context, key string, value T) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the values whose key starts with prefix, ordered by key.
	// An empty prefix lists everything.
	List(ctx context.Context, prefix string) ([]T, error)

	// Clear removes every value.
	Clear(ctx context.Context) error
}

// ReadModelKey path-escapes each part and joins them with "/", so IDs that
// contain "/" cannot collide with other keys or prefixes.
func ReadModelKey(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = url.PathEscape(part)
	}
	return strings.Join(escaped, "/")
}

// MemoryReadModelStore is an in-memory ReadModelStore.
// Useful for testing and single-process deployments.
type MemoryReadModelStore[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

var _ ReadModelStore[struct{}] = (*MemoryReadModelStore[struct{}])(nil)

// NewMemoryReadModelStore creates an empty in-memory store.
func NewMemoryReadModelStore[T any]() *MemoryReadModelStore[T] {
	return &MemoryReadModelStore[T]{data: make(map[string]T)}
}

// Get implements ReadModelStore.
func (s *MemoryReadModelStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Upsert implements ReadModelStore.
func (s *MemoryReadModelStore[T]) Upsert(ctx context.Context, key string, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete implements ReadModelStore.
func (s *MemoryReadModelStore[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List implements ReadModelStore.
func (s *MemoryReadModelStore[T]) List(ctx context.Context, prefix string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = s.data[k]
	}
	return out, nil
}

// Clear implements ReadModelStore.
func (s *MemoryReadModelStore[T]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]T)
	return nil
}

// Len returns the number of stored values.
func (s *MemoryReadModelStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
