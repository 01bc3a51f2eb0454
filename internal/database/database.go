package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ansg191/contentgen/internal/llm"
)

// ErrNotFound matches llm.ErrNotFound so lookups plug straight into the
// resolver.
var ErrNotFound = llm.ErrNotFound

// Database is the Postgres backed model registry.
type Database interface {
	io.Closer
	llm.Registry
	// Models lists registered models ordered by id.
	Models(ctx context.Context) ([]llm.ModelDescriptor, error)
	// UpsertProvider inserts or replaces a provider row.
	UpsertProvider(ctx context.Context, provider Provider) error
	// UpsertModel inserts or replaces a model row and replaces its aliases.
	UpsertModel(ctx context.Context, model Model) error
}

// Provider is a stored provider row. Keys are never stored, only the name of
// the environment variable holding one.
type Provider struct {
	ID        string
	Family    string
	APIKeyEnv string
	BaseURL   string
}

type Model struct {
	ID       string
	Name     string
	Provider string
	Aliases  []string
}

type postgresDatabase struct {
	db     *sql.DB
	getenv func(string) string
}

func (p *postgresDatabase) Close() error {
	return p.db.Close()
}

// NewPostgresDatabase connects to databaseURL, falling back to DATABASE_URL
// when it is empty.
func NewPostgresDatabase(ctx context.Context, databaseURL string) (Database, error) {
	if databaseURL == "" {
		databaseURL = getDBUrl()
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("missing env var DATABASE_URL")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &postgresDatabase{db: db, getenv: os.Getenv}, nil
}

func (p *postgresDatabase) LookupModel(ctx context.Context, id string) (llm.ModelDescriptor, error) {
	var model llm.ModelDescriptor
	err := p.db.QueryRowContext(ctx,
		`SELECT m.id, m.name, m.provider_id
FROM models m
LEFT JOIN model_aliases a ON a.model_id = m.id
WHERE m.id = $1 OR a.alias = $1
ORDER BY CASE WHEN m.id = $1 THEN 0 ELSE 1 END
LIMIT 1`,
		id).Scan(&model.ID, &model.Name, &model.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return llm.ModelDescriptor{}, fmt.Errorf("model %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return llm.ModelDescriptor{}, err
	}
	return model, nil
}

func (p *postgresDatabase) LookupProvider(ctx context.Context, modelID string) (llm.ProviderDescriptor, error) {
	model, err := p.LookupModel(ctx, modelID)
	if err != nil {
		return llm.ProviderDescriptor{}, err
	}

	var row Provider
	err = p.db.QueryRowContext(ctx,
		"SELECT id, family, api_key_env, base_url FROM providers WHERE id = $1",
		model.Provider).Scan(&row.ID, &row.Family, &row.APIKeyEnv, &row.BaseURL)
	if errors.Is(err, sql.ErrNoRows) {
		return llm.ProviderDescriptor{}, fmt.Errorf("provider %q: %w", model.Provider, ErrNotFound)
	}
	if err != nil {
		return llm.ProviderDescriptor{}, err
	}

	family, err := llm.ParseFamily(row.Family)
	if err != nil {
		return llm.ProviderDescriptor{}, fmt.Errorf("provider %q: %w", row.ID, err)
	}
	provider := llm.ProviderDescriptor{ID: row.ID, Family: family, BaseURL: row.BaseURL}
	if row.APIKeyEnv != "" {
		provider.APIKey = strings.TrimSpace(p.getenv(row.APIKeyEnv))
	}
	return provider, nil
}

func (p *postgresDatabase) Models(ctx context.Context) ([]llm.ModelDescriptor, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id, name, provider_id FROM models ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []llm.ModelDescriptor
	for rows.Next() {
		var model llm.ModelDescriptor
		if err := rows.Scan(&model.ID, &model.Name, &model.Provider); err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models, nil
}

func (p *postgresDatabase) UpsertProvider(ctx context.Context, provider Provider) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO providers (id, family, api_key_env, base_url)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	family = EXCLUDED.family,
	api_key_env = EXCLUDED.api_key_env,
	base_url = EXCLUDED.base_url`,
		provider.ID, provider.Family, provider.APIKeyEnv, provider.BaseURL)
	return err
}

func (p *postgresDatabase) UpsertModel(ctx context.Context, model Model) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO models (id, name, provider_id)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	provider_id = EXCLUDED.provider_id`,
		model.ID, model.Name, model.Provider)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM model_aliases WHERE model_id = $1", model.ID); err != nil {
		return err
	}
	for _, alias := range model.Aliases {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO model_aliases (alias, model_id) VALUES ($1, $2) "+
				"ON CONFLICT (alias) DO UPDATE SET model_id = EXCLUDED.model_id",
			alias, model.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func getDBUrl() string {
	return os.Getenv("DATABASE_URL")
}
