package protocol

import (
	"fmt"
	"sync"

	internalerrors "github.com/jamesprial/mcp-runtime/internal/errors"
)

// Keyed is implemented by every entry a Registry stores, generalizing the
// teacher's separate tool_registry.go/resource_registry.go into one
// copy-on-write-on-read map type shared by tools, resources, resource
// templates, and prompts.
type Keyed interface {
	RegistryKey() string
}

// Registry is a thread-safe, insert/remove/list store keyed by name or URI.
// Reads take an RLock and copy out a snapshot slice so callers never observe
// a map being mutated underneath them (spec.md §4.4.4, §8).
type Registry[T Keyed] struct {
	mu       sync.RWMutex
	entries  map[string]T
	onChange func()
}

// NewRegistry creates an empty registry. onChange, if non-nil, fires after
// every successful Add or Remove — the server wires this to a
// `notifications/*/list_changed` broadcast.
func NewRegistry[T Keyed](onChange func()) *Registry[T] {
	return &Registry[T]{
		entries:  make(map[string]T),
		onChange: onChange,
	}
}

// Add inserts entry, failing with ErrAlreadyExists if its key is taken.
func (r *Registry[T]) Add(entry T) error {
	key := entry.RegistryKey()
	if key == "" {
		return internalerrors.New("protocol", "Registry.Add", internalerrors.ErrBadRequest, fmt.Errorf("registry key cannot be empty"))
	}

	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.mu.Unlock()
		return internalerrors.New("protocol", "Registry.Add", internalerrors.ErrAlreadyExists, nil).
			WithContext("key", key)
	}
	r.entries[key] = entry
	r.mu.Unlock()

	r.notify()
	return nil
}

// Remove deletes the entry for key, failing with ErrNotFound if absent.
func (r *Registry[T]) Remove(key string) error {
	r.mu.Lock()
	if _, exists := r.entries[key]; !exists {
		r.mu.Unlock()
		return internalerrors.New("protocol", "Registry.Remove", internalerrors.ErrNotFound, nil).
			WithContext("key", key)
	}
	delete(r.entries, key)
	r.mu.Unlock()

	r.notify()
	return nil
}

// Get retrieves the entry for key, failing with ErrNotFound if absent.
func (r *Registry[T]) Get(key string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[key]
	if !exists {
		var zero T
		return zero, internalerrors.New("protocol", "Registry.Get", internalerrors.ErrNotFound, nil).
			WithContext("key", key)
	}
	return entry, nil
}

// List returns a snapshot of all entries. Order is unspecified; callers
// that need stable pagination should sort by RegistryKey.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	return out
}

func (r *Registry[T]) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}
