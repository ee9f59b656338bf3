package server

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/resquel/internal/route"
)

// Registry holds named hooks that route declarations refer to.
//
// Thread-safety: safe for concurrent use. Hooks are normally registered at
// startup and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	before map[string]route.BeforeFunc
	after  map[string]route.AfterFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		before: make(map[string]route.BeforeFunc),
		after:  make(map[string]route.AfterFunc),
	}
}

// RegisterBefore adds a before hook. A later registration replaces an
// earlier one with the same name.
func (r *Registry) RegisterBefore(name string, fn route.BeforeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before[name] = fn
}

// RegisterAfter adds an after hook.
func (r *Registry) RegisterAfter(name string, fn route.AfterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after[name] = fn
}

// BeforeNames returns the registered before hook names, sorted.
func (r *Registry) BeforeNames() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.before)
}

// AfterNames returns the registered after hook names, sorted.
func (r *Registry) AfterNames() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.after)
}

// Bind returns spec with its named hooks resolved to functions. Functions
// already set on spec are kept.
func (r *Registry) Bind(spec route.Spec) (route.Spec, error) {
	if spec.Before != "" && spec.BeforeHook == nil {
		fn, ok := r.lookupBefore(spec.Before)
		if !ok {
			return spec, fmt.Errorf("route %s: unknown before hook %q", spec, spec.Before)
		}
		spec.BeforeHook = fn
	}
	if spec.After != "" && spec.AfterHook == nil {
		fn, ok := r.lookupAfter(spec.After)
		if !ok {
			return spec, fmt.Errorf("route %s: unknown after hook %q", spec, spec.After)
		}
		spec.AfterHook = fn
	}
	return spec, nil
}

func (r *Registry) lookupBefore(name string) (route.BeforeFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.before[name]
	return fn, ok
}

func (r *Registry) lookupAfter(name string) (route.AfterFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.after[name]
	return fn, ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
