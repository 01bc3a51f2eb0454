// Package registry holds the model and provider descriptors that model ids
// resolve against.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ansg191/contentgen/internal/llm"
)

// File is the on-disk registry document.
type File struct {
	Providers []ProviderEntry `yaml:"providers" toml:"providers" json:"providers"`
	Models    []ModelEntry    `yaml:"models" toml:"models" json:"models"`
}

// ProviderEntry describes one backend. APIKeyEnv names an environment
// variable holding the key and is only consulted when APIKey is empty.
type ProviderEntry struct {
	ID        string `yaml:"id" toml:"id" json:"id"`
	Family    string `yaml:"family,omitempty" toml:"family" json:"family,omitempty"`
	APIKey    string `yaml:"api_key,omitempty" toml:"api_key" json:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty" toml:"api_key_env" json:"api_key_env,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty" toml:"base_url" json:"base_url,omitempty"`
}

// ModelEntry registers a model id. Ref is the "<provider>/<call name>"
// shorthand for Provider and Name.
type ModelEntry struct {
	ID       string   `yaml:"id" toml:"id" json:"id"`
	Name     string   `yaml:"name,omitempty" toml:"name" json:"name,omitempty"`
	Provider string   `yaml:"provider,omitempty" toml:"provider" json:"provider,omitempty"`
	Ref      string   `yaml:"ref,omitempty" toml:"ref" json:"ref,omitempty"`
	Aliases  []string `yaml:"aliases,omitempty" toml:"aliases" json:"aliases,omitempty"`
}

// Registry is an immutable in-memory llm.Registry.
type Registry struct {
	models    map[string]llm.ModelDescriptor
	providers map[string]llm.ProviderDescriptor
}

var _ llm.Registry = (*Registry)(nil)

// New validates f and builds a registry from it. getenv resolves APIKeyEnv
// references; nil means os.Getenv.
func New(f File, getenv func(string) string) (*Registry, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	r := &Registry{
		models:    make(map[string]llm.ModelDescriptor, len(f.Models)),
		providers: make(map[string]llm.ProviderDescriptor, len(f.Providers)),
	}

	var errs []error
	for i, entry := range f.Providers {
		provider, err := entry.descriptor(getenv)
		if err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
			continue
		}
		if _, ok := r.providers[provider.ID]; ok {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate provider %q", i, provider.ID))
			continue
		}
		r.providers[provider.ID] = provider
	}

	for i, entry := range f.Models {
		model, err := entry.descriptor()
		if err != nil {
			errs = append(errs, fmt.Errorf("models[%d]: %w", i, err))
			continue
		}
		if _, ok := r.providers[model.Provider]; !ok {
			errs = append(errs, fmt.Errorf("models[%d]: model %q references unknown provider %q", i, model.ID, model.Provider))
			continue
		}
		for _, id := range append([]string{model.ID}, entry.Aliases...) {
			id = strings.TrimSpace(id)
			if id == "" {
				errs = append(errs, fmt.Errorf("models[%d]: empty alias", i))
				continue
			}
			if _, ok := r.models[id]; ok {
				errs = append(errs, fmt.Errorf("models[%d]: duplicate model id %q", i, id))
				continue
			}
			r.models[id] = model
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	return r, nil
}

func (e ProviderEntry) descriptor(getenv func(string) string) (llm.ProviderDescriptor, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return llm.ProviderDescriptor{}, fmt.Errorf("provider id is empty")
	}
	family, err := llm.ParseFamily(e.Family)
	if err != nil {
		return llm.ProviderDescriptor{}, fmt.Errorf("provider %q: %w", id, err)
	}
	apiKey := strings.TrimSpace(e.APIKey)
	if apiKey == "" && e.APIKeyEnv != "" {
		apiKey = strings.TrimSpace(getenv(e.APIKeyEnv))
	}
	return llm.ProviderDescriptor{
		ID:      id,
		Family:  family,
		APIKey:  apiKey,
		BaseURL: strings.TrimSpace(e.BaseURL),
	}, nil
}

func (e ModelEntry) descriptor() (llm.ModelDescriptor, error) {
	model := llm.ModelDescriptor{
		ID:       strings.TrimSpace(e.ID),
		Name:     strings.TrimSpace(e.Name),
		Provider: strings.TrimSpace(e.Provider),
	}
	if e.Ref != "" {
		ref, err := llm.ParseModelRef(e.Ref)
		if err != nil {
			return llm.ModelDescriptor{}, err
		}
		if model.Provider == "" {
			model.Provider = ref.Provider
		}
		if model.Name == "" {
			model.Name = ref.Model
		}
		if model.ID == "" {
			model.ID = ref.Raw
		}
	}

	switch {
	case model.ID == "":
		return llm.ModelDescriptor{}, fmt.Errorf("model id is empty")
	case model.Name == "":
		return llm.ModelDescriptor{}, fmt.Errorf("model %q has no call name", model.ID)
	case model.Provider == "":
		return llm.ModelDescriptor{}, fmt.Errorf("model %q has no provider", model.ID)
	}
	return model, nil
}

func (r *Registry) LookupModel(_ context.Context, id string) (llm.ModelDescriptor, error) {
	model, ok := r.models[id]
	if !ok {
		return llm.ModelDescriptor{}, fmt.Errorf("model %q: %w", id, llm.ErrNotFound)
	}
	return model, nil
}

func (r *Registry) LookupProvider(ctx context.Context, modelID string) (llm.ProviderDescriptor, error) {
	model, err := r.LookupModel(ctx, modelID)
	if err != nil {
		return llm.ProviderDescriptor{}, err
	}
	provider, ok := r.providers[model.Provider]
	if !ok {
		return llm.ProviderDescriptor{}, fmt.Errorf("provider %q: %w", model.Provider, llm.ErrNotFound)
	}
	return provider, nil
}

// Models lists every registered model once, sorted by id. Aliases are not
// listed separately.
func (r *Registry) Models(context.Context) ([]llm.ModelDescriptor, error) {
	seen := make(map[string]struct{}, len(r.models))
	models := make([]llm.ModelDescriptor, 0, len(r.models))
	for _, model := range r.models {
		if _, ok := seen[model.ID]; ok {
			continue
		}
		seen[model.ID] = struct{}{}
		models = append(models, model)
	}
	slices.SortFunc(models, func(a, b llm.ModelDescriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return models, nil
}

func (r *Registry) Close() error {
	return nil
}
