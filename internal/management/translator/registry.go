package translator

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Type is the discriminator of one message representation, for example
// "command/exec-request" or "agent/json/request". Types are plain strings so
// translator selection never depends on runtime type introspection.
type Type string

// Key identifies one translator by its ordered (source, target) pair.
type Key struct {
	Source Type
	Target Type
}

func (k Key) String() string {
	return string(k.Source) + "->" + string(k.Target)
}

// Func converts a value of representation S into representation T.
// Implementations must be pure: no I/O, no shared mutable state.
type Func[S, T any] func(S) (T, error)

type entry struct {
	typed   any
	untyped func(any) (any, error)
}

// Registry resolves translators by exact (source, target) pair.
//
// Translators are registered during startup. After Seal the table is
// immutable and lookups take no lock. The registry never composes two
// translators into one: every hop is resolved by the caller that needs it.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]entry
	sealed  atomic.Bool
}

// NewRegistry creates an empty translator registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Key]entry),
	}
}

// Register adds the translator fn for the pair (source, target).
//
// Registering a pair twice returns ErrDuplicate; callers treat that as a
// fatal startup error.
func Register[S, T any](r *Registry, source, target Type, fn Func[S, T]) error {
	if source == "" || target == "" {
		return fmt.Errorf("%w: empty discriminator in %q -> %q", ErrInvalidType, source, target)
	}
	if fn == nil {
		return fmt.Errorf("translator: nil function for %s -> %s", source, target)
	}

	key := Key{Source: source, Target: target}
	e := entry{
		typed: fn,
		untyped: func(v any) (any, error) {
			s, ok := v.(S)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects %T, got %T", ErrTypeMismatch, key, *new(S), v)
			}
			return fn(s)
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot register %s", ErrSealed, key)
	}
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	r.entries[key] = e
	return nil
}

// MustRegister is Register that panics on error. Intended for package-level
// registration helpers whose only failure mode is a programming error.
func MustRegister[S, T any](r *Registry, source, target Type, fn Func[S, T]) {
	if err := Register(r, source, target, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the typed translator for (source, target).
//
// Returns *NotFoundError when the pair is not registered and ErrTypeMismatch
// when it was registered with different Go types.
func Lookup[S, T any](r *Registry, source, target Type) (Func[S, T], error) {
	e, ok := r.get(Key{Source: source, Target: target})
	if !ok {
		return nil, &NotFoundError{Source: source, Target: target}
	}
	fn, ok := e.typed.(Func[S, T])
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s is not %T", ErrTypeMismatch, source, target, fn)
	}
	return fn, nil
}

// Resolve returns the translator for (source, target) working on untyped
// values. It is used by layers that carry dialect messages as any.
func (r *Registry) Resolve(source, target Type) (func(any) (any, error), error) {
	e, ok := r.get(Key{Source: source, Target: target})
	if !ok {
		return nil, &NotFoundError{Source: source, Target: target}
	}
	return e.untyped, nil
}

// Translate resolves (source, target) and applies it to v.
func (r *Registry) Translate(source, target Type, v any) (any, error) {
	fn, err := r.Resolve(source, target)
	if err != nil {
		return nil, err
	}
	return fn(v)
}

// Has reports whether a translator is registered for (source, target).
func (r *Registry) Has(source, target Type) bool {
	_, ok := r.get(Key{Source: source, Target: target})
	return ok
}

// Seal freezes the registry. Further registrations fail with ErrSealed and
// lookups no longer lock.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Keys returns the registered pairs sorted by source then target.
func (r *Registry) Keys() []Key {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Target, b.Target)
	})
	return keys
}

// Len returns the number of registered translators.
func (r *Registry) Len() int {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return len(r.entries)
}

func (r *Registry) get(key Key) (entry, bool) {
	if r.sealed.Load() {
		e, ok := r.entries[key]
		return e, ok
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}
