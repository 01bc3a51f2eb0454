package registry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ansg191/contentgen/internal/database"
	"github.com/ansg191/contentgen/internal/llm"
)

// DefaultSource is used when CONTENTGEN_REGISTRY is unset.
const DefaultSource = "config/registry.yaml"

// Store is a registry that can list its models and must be closed.
type Store interface {
	llm.Registry
	io.Closer
	Models(ctx context.Context) ([]llm.ModelDescriptor, error)
}

// Open returns the registry at source. postgres:// URLs open the database
// registry after applying migrations; anything else is loaded with Load.
func Open(ctx context.Context, source string) (Store, error) {
	if source == "" {
		source = DefaultSource
	}
	if IsDatabaseURL(source) {
		if err := database.EnsureMigrations(source); err != nil {
			return nil, err
		}
		db, err := database.NewPostgresDatabase(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("failed to open registry database: %w", err)
		}
		return db, nil
	}
	return Load(ctx, source)
}

// IsDatabaseURL reports whether source names a Postgres registry.
func IsDatabaseURL(source string) bool {
	return strings.HasPrefix(source, "postgres://") || strings.HasPrefix(source, "postgresql://")
}

// Writer is the write side of a database registry.
type Writer interface {
	UpsertProvider(ctx context.Context, provider database.Provider) error
	UpsertModel(ctx context.Context, model database.Model) error
}

// Seed validates f and writes it into w. Literal API keys are refused since
// the database only stores environment variable names.
func Seed(ctx context.Context, w Writer, f File) error {
	if _, err := New(f, func(string) string { return "" }); err != nil {
		return err
	}

	for _, p := range f.Providers {
		if p.APIKey != "" {
			return fmt.Errorf("provider %q: api_key cannot be seeded, use api_key_env", p.ID)
		}
		family, err := llm.ParseFamily(p.Family)
		if err != nil {
			return err
		}
		err = w.UpsertProvider(ctx, database.Provider{
			ID:        strings.TrimSpace(p.ID),
			Family:    string(family),
			APIKeyEnv: p.APIKeyEnv,
			BaseURL:   strings.TrimSpace(p.BaseURL),
		})
		if err != nil {
			return fmt.Errorf("failed to seed provider %q: %w", p.ID, err)
		}
	}

	for _, m := range f.Models {
		model, err := m.descriptor()
		if err != nil {
			return err
		}
		err = w.UpsertModel(ctx, database.Model{
			ID:       model.ID,
			Name:     model.Name,
			Provider: model.Provider,
			Aliases:  m.Aliases,
		})
		if err != nil {
			return fmt.Errorf("failed to seed model %q: %w", model.ID, err)
		}
	}
	return nil
}
