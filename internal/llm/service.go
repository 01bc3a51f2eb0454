package llm

import (
	"context"
)

// Service resolves model ids against a registry and builds generators.
type Service struct {
	registry Registry
	factory  *Factory
}

func NewService(registry Registry, factory *Factory) *Service {
	return &Service{registry: registry, factory: factory}
}

// ResolveConfig resolves id against the service's registry.
func (s *Service) ResolveConfig(ctx context.Context, id string) (BackendConfig, error) {
	return ResolveConfig(ctx, id, s.registry)
}

// NewContentGenerator resolves id and creates a generator for it.
func (s *Service) NewContentGenerator(ctx context.Context, id string, mode AuthMode) (ContentGenerator, error) {
	cfg, err := ResolveConfig(ctx, id, s.registry)
	if err != nil {
		return nil, err
	}
	return s.factory.Create(ctx, cfg, mode)
}
