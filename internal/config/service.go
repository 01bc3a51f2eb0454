package config

import (
	"context"
	"fmt"

	"github.com/ansg191/contentgen/internal/llm"
	"github.com/ansg191/contentgen/internal/registry"
)

// NewService snapshots the process environment, opens the registry named by
// CONTENTGEN_REGISTRY and wires both into an llm.Service. The caller closes
// the returned store.
func NewService(ctx context.Context) (*llm.Service, registry.Store, error) {
	env, err := llm.EnvironmentFromOS(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read environment: %w", err)
	}

	store, err := registry.Open(ctx, RegistrySource())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open registry: %w", err)
	}

	return llm.NewService(store, llm.NewFactory(env)), store, nil
}
