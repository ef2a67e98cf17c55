// Package normalizer maps a (platform family, platform name) pair to the
// code that turns that platform's webhook payloads into canonical records
// and persists them.
package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
)

var (
	// ErrNoNormalizer is returned by Resolve for an unregistered platform.
	ErrNoNormalizer = errors.New("no normalizer registered")

	// ErrInvalidPayload marks payloads a normalizer can never accept.
	// Retrying them cannot succeed.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Normalizer converts one platform's payloads into canonical records and
// persists them. Persist must be idempotent under the record's business key.
type Normalizer interface {
	Normalize(ctx context.Context, payload json.RawMessage) (domain.CanonicalRecord, error)
	Persist(ctx context.Context, record domain.CanonicalRecord) error
}

// Key identifies a platform.
type Key struct {
	Family string
	Name   string
}

func (k Key) String() string {
	return k.Family + "/" + k.Name
}

// Registry holds normalizers keyed by platform. It is populated at startup
// and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	items map[Key]Normalizer
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[Key]Normalizer)}
}

// Register adds a normalizer. Registering the same platform twice is an error.
func (r *Registry) Register(family, name string, n Normalizer) error {
	if family == "" || name == "" {
		return fmt.Errorf("registering normalizer: family and name are required")
	}
	if n == nil {
		return fmt.Errorf("registering normalizer %s/%s: nil normalizer", family, name)
	}

	key := Key{Family: family, Name: name}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; exists {
		return fmt.Errorf("normalizer %s already registered", key)
	}
	r.items[key] = n
	return nil
}

// Resolve returns the normalizer for a platform or ErrNoNormalizer.
func (r *Registry) Resolve(family, name string) (Normalizer, error) {
	if r == nil {
		return nil, ErrNoNormalizer
	}

	r.mu.RLock()
	n, ok := r.items[Key{Family: family, Name: name}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s/%s", ErrNoNormalizer, family, name)
	}
	return n, nil
}

// Has reports whether a normalizer is registered for the platform.
func (r *Registry) Has(family, name string) bool {
	_, err := r.Resolve(family, name)
	return err == nil
}

// Keys lists the registered platforms in a stable order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
