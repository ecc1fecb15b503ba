// Package registry resolves public model ids to providers and upstream names.
// A Registry is built once at startup and is read-only afterwards, so it is
// safe to share between concurrent requests without locking.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"promptgate/internal/llm"
)

// ErrDuplicateModel indicates an attempt to register the same model id twice.
var ErrDuplicateModel = errors.New("model already registered")

type Registry struct {
	models map[string]llm.Model
	ids    []string
}

// New builds a registry from models plus aliases (alias id -> target id).
// An alias resolves to a copy of its target under the alias id. Targets must
// be catalog models; alias chains are rejected.
func New(models []llm.Model, aliases map[string]string) (*Registry, error) {
	r := &Registry{models: make(map[string]llm.Model, len(models)+len(aliases))}

	for _, m := range models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, errors.New("model id must not be empty")
		}
		if m.Provider == "" || m.UpstreamName == "" {
			return nil, fmt.Errorf("model %q: provider and upstream name are required", id)
		}
		if _, exists := r.models[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, id)
		}
		if m.DisplayName == "" {
			m.DisplayName = id
		}
		m.ID = id
		r.models[id] = m
	}

	// sorted so errors and results do not depend on map order
	aliasIDs := make([]string, 0, len(aliases))
	for alias := range aliases {
		aliasIDs = append(aliasIDs, alias)
	}
	sort.Strings(aliasIDs)

	for _, alias := range aliasIDs {
		target := aliases[alias]
		if strings.TrimSpace(alias) == "" {
			return nil, errors.New("alias name must not be empty")
		}
		if _, exists := r.models[alias]; exists {
			return nil, fmt.Errorf("alias %q conflicts with existing model", alias)
		}
		if _, chained := aliases[target]; chained {
			return nil, fmt.Errorf("alias %q targets alias %q; aliases must target a catalog model", alias, target)
		}
		m, ok := r.models[target]
		if !ok {
			return nil, fmt.Errorf("alias %q references unknown model %q", alias, target)
		}
		m.ID = alias
		r.models[alias] = m
	}

	r.ids = make([]string, 0, len(r.models))
	for id := range r.models {
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	return r, nil
}

// Default returns a registry over the built-in catalog plus aliases.
func Default(aliases map[string]string) (*Registry, error) {
	return New(Builtin(), aliases)
}

// Resolve returns the model for id, or an error wrapping llm.ErrModelNotFound.
func (r *Registry) Resolve(id string) (llm.Model, error) {
	m, ok := r.models[id]
	if !ok {
		return llm.Model{}, fmt.Errorf("%w: %s", llm.ErrModelNotFound, id)
	}
	return m, nil
}

// List returns every model sorted by id.
func (r *Registry) List() []llm.Model {
	out := make([]llm.Model, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.models[id])
	}
	return out
}

// Providers returns the distinct providers referenced by the catalog.
func (r *Registry) Providers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range r.ids {
		p := r.models[id].Provider
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
