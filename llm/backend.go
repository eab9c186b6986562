// Package llm provides the model backends used by the analysis pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyResponse = errors.New("model returned empty content")
	ErrBlocked       = errors.New("model blocked the prompt")
)

// Prompt is the system/user pair sent to a backend
type Prompt struct {
	System string
	User   string
}

// Backend is one configured large-language-model endpoint
type Backend interface {
	Name() string
	Invoke(ctx context.Context, prompt Prompt) (string, error)
}

// Registry holds the configured backends in a stable order
type Registry struct {
	backends []Backend
	byName   map[string]Backend
	primary  string
}

// NewRegistry creates a registry. The primary backend must be one of the backends
// when set; otherwise the first backend is primary.
func NewRegistry(primary string, backends ...Backend) (*Registry, error) {
	r := &Registry{byName: make(map[string]Backend)}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if _, dup := r.byName[b.Name()]; dup {
			return nil, fmt.Errorf("duplicate backend %q", b.Name())
		}
		r.byName[b.Name()] = b
		r.backends = append(r.backends, b)
	}
	if primary != "" {
		if _, ok := r.byName[primary]; !ok {
			return nil, fmt.Errorf("primary backend %q is not configured", primary)
		}
		r.primary = primary
	} else if len(r.backends) > 0 {
		r.primary = r.backends[0].Name()
	}
	return r, nil
}

// Backends returns the backends in registration order
func (r *Registry) Backends() []Backend {
	if r == nil {
		return nil
	}
	return append([]Backend(nil), r.backends...)
}

// Get looks a backend up by name
func (r *Registry) Get(name string) (Backend, bool) {
	if r == nil {
		return nil, false
	}
	b, ok := r.byName[name]
	return b, ok
}

// Primary returns the primary backend, if any
func (r *Registry) Primary() (Backend, bool) {
	return r.Get(r.PrimaryName())
}

// PrimaryName returns the name of the primary backend
func (r *Registry) PrimaryName() string {
	if r == nil {
		return ""
	}
	return r.primary
}

// Names returns the sorted backend names
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.Name())
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured backends
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.backends)
}
