// Package registry provides a lightweight name-to-implementation table, one
// instance per extension point (sources, raw caches, preprocessed caches,
// frontends, optimizers, backends - see the wiring package).
//
// This is a statically-typed name-to-factory registry in the style
// of a decorator-based Python registry ("dynamic class registration,
// typed lookup"): instead of importing a module for its decorator
// side-effects, plugin packages call Register during an explicit
// initialization phase driven by the plugin loader (see package plugin).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package registry

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/sgtransit/ingest/cmn/xerrors"
)

// Factory constructs a new instance of a registered implementation from its
// declarative config. T is the interface constraint for this registry
// (e.g. DataSource, RawCache) - every Factory must produce a T.
type Factory[T any] func(config map[string]any) (T, error)

type item[T any] struct {
	name    string
	factory Factory[T]
	// fingerprint disambiguates "same factory re-registered" (idempotent)
	// from "different factory under the same name" (duplicate), since Go
	// function values aren't otherwise comparable.
	fingerprint uintptr
}

// Registry is a name -> Factory table for one extension point.
type Registry[T any] struct {
	namespace string

	mu    sync.Mutex
	items map[string]item[T]
}

// New creates a registry for one extension point. namespace is used only
// for error messages and logging.
func New[T any](namespace string) *Registry[T] {
	if strings.TrimSpace(namespace) == "" {
		panic("registry: namespace must be non-empty")
	}
	return &Registry[T]{
		namespace: namespace,
		items:     make(map[string]item[T]),
	}
}

func normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", xerrors.InvalidRegistrationf("registry name must be non-empty after trimming whitespace")
	}
	return n, nil
}

// Register binds name to factory. Registering the same name twice with a
// factory that resolves to the same underlying function is idempotent;
// registering a different factory under an existing name fails unless
// override is set to true. Plugin packages call this from their
// registration hook (the thunk handed to plugin.Provide), never at request
// time.
func (r *Registry[T]) Register(name string, factory Factory[T], override bool) error {
	normalized, err := normalize(name)
	if err != nil {
		return err
	}
	if factory == nil {
		return xerrors.InvalidRegistrationf("[%s] cannot register nil factory for name %q", r.namespace, normalized)
	}
	fp := reflect.ValueOf(factory).Pointer()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[normalized]
	if ok && !override {
		if existing.fingerprint == fp {
			return nil // idempotent re-registration
		}
		return xerrors.Duplicatef("[%s] name %q already registered, refusing to override", r.namespace, normalized)
	}
	r.items[normalized] = item[T]{name: normalized, factory: factory, fingerprint: fp}
	return nil
}

// Get returns the factory for name, or nil if it isn't registered.
func (r *Registry[T]) Get(name string) Factory[T] {
	normalized, err := normalize(name)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[normalized]
	if !ok {
		return nil
	}
	return it.factory
}

// Require returns the factory for name, failing with KindNotFound (listing
// the available names) if it isn't registered.
func (r *Registry[T]) Require(name string) (Factory[T], error) {
	f := r.Get(name)
	if f == nil {
		normalized, _ := normalize(name)
		return nil, xerrors.NotFoundf("[%s] name %q not found, available=%v", r.namespace, normalized, r.Keys())
	}
	return f, nil
}

// New constructs a new T for name, using the given config map.
func (r *Registry[T]) New(name string, config map[string]any) (T, error) {
	var zero T
	f, err := r.Require(name)
	if err != nil {
		return zero, err
	}
	return f(config)
}

// Keys returns all registered names, sorted.
func (r *Registry[T]) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for k := range r.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered names.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Contains reports whether name is registered.
func (r *Registry[T]) Contains(name string) bool {
	return r.Get(name) != nil
}

// Namespace returns the registry's namespace (for diagnostics/listing).
func (r *Registry[T]) Namespace() string { return r.namespace }
