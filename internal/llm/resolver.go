package llm

import (
	"context"
	"errors"
	"strings"
)

// Family names the wire protocol spoken by a direct API provider.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
)

// ModelDescriptor maps a caller facing id to a wire call name.
type ModelDescriptor struct {
	ID       string
	Name     string
	Provider string
}

// ProviderDescriptor is the credential and endpoint bundle of one backend.
type ProviderDescriptor struct {
	ID      string
	Family  Family
	APIKey  string
	BaseURL string
}

// Registry looks up descriptors. Implementations return an error matching
// ErrNotFound when an id has no entry.
type Registry interface {
	LookupModel(ctx context.Context, id string) (ModelDescriptor, error)
	LookupProvider(ctx context.Context, modelID string) (ProviderDescriptor, error)
}

// BackendConfig is the resolved input of Factory.Create.
type BackendConfig struct {
	Model    string
	APIKey   string
	Endpoint string
	Family   Family
}

// ResolveConfig turns a model id into the backend configuration registered
// for it. It never substitutes a default model.
func ResolveConfig(ctx context.Context, id string, reg Registry) (BackendConfig, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return BackendConfig{}, newConfigError(ErrUnknownModel, nil, "model id is empty")
	}

	model, err := reg.LookupModel(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return BackendConfig{}, newConfigError(ErrUnknownModel, err, "model %q", id)
		}
		return BackendConfig{}, err
	}
	if model.Name == "" {
		return BackendConfig{}, newConfigError(ErrUnknownModel, nil, "model %q has no call name", id)
	}

	provider, err := reg.LookupProvider(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return BackendConfig{}, newConfigError(ErrUnknownProvider, err, "no provider for model %q", id)
		}
		return BackendConfig{}, err
	}

	return BackendConfig{
		Model:    model.Name,
		APIKey:   provider.APIKey,
		Endpoint: provider.BaseURL,
		Family:   provider.Family,
	}, nil
}
