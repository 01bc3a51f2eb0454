package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ansg191/contentgen/internal/database"
	"github.com/ansg191/contentgen/internal/llm"
)

func testFile() File {
	return File{
		Providers: []ProviderEntry{
			{ID: "example", Family: "gemini", APIKey: "k1", BaseURL: "https://api.example/v1"},
			{ID: "openai", APIKeyEnv: "OPENAI_API_KEY"},
			{ID: "anthropic", Family: "anthropic", APIKeyEnv: "ANTHROPIC_API_KEY"},
		},
		Models: []ModelEntry{
			{ID: "gemini-pro", Name: "models/gemini-pro-001", Provider: "example", Aliases: []string{"gp"}},
			{ID: "gpt", Ref: "openai/gpt-5.2"},
			{Ref: "anthropic/claude-sonnet-4-5"},
		},
	}
}

func testEnv(key string) string {
	switch key {
	case "OPENAI_API_KEY":
		return "sk-test"
	default:
		return ""
	}
}

func TestNew_Lookups(t *testing.T) {
	t.Parallel()

	reg, err := New(testFile(), testEnv)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		id       string
		model    llm.ModelDescriptor
		provider llm.ProviderDescriptor
	}{
		{
			id:       "gemini-pro",
			model:    llm.ModelDescriptor{ID: "gemini-pro", Name: "models/gemini-pro-001", Provider: "example"},
			provider: llm.ProviderDescriptor{ID: "example", Family: llm.FamilyGemini, APIKey: "k1", BaseURL: "https://api.example/v1"},
		},
		{
			id:       "gp",
			model:    llm.ModelDescriptor{ID: "gemini-pro", Name: "models/gemini-pro-001", Provider: "example"},
			provider: llm.ProviderDescriptor{ID: "example", Family: llm.FamilyGemini, APIKey: "k1", BaseURL: "https://api.example/v1"},
		},
		{
			id:       "gpt",
			model:    llm.ModelDescriptor{ID: "gpt", Name: "gpt-5.2", Provider: "openai"},
			provider: llm.ProviderDescriptor{ID: "openai", Family: llm.FamilyOpenAI, APIKey: "sk-test"},
		},
		{
			id:       "anthropic/claude-sonnet-4-5",
			model:    llm.ModelDescriptor{ID: "anthropic/claude-sonnet-4-5", Name: "claude-sonnet-4-5", Provider: "anthropic"},
			provider: llm.ProviderDescriptor{ID: "anthropic", Family: llm.FamilyAnthropic},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.id, func(t *testing.T) {
			t.Parallel()

			model, err := reg.LookupModel(ctx, tc.id)
			if err != nil {
				t.Fatalf("LookupModel() error: %v", err)
			}
			if model != tc.model {
				t.Fatalf("LookupModel() = %+v, want %+v", model, tc.model)
			}
			provider, err := reg.LookupProvider(ctx, tc.id)
			if err != nil {
				t.Fatalf("LookupProvider() error: %v", err)
			}
			if provider != tc.provider {
				t.Fatalf("LookupProvider() = %+v, want %+v", provider, tc.provider)
			}
		})
	}
}

func TestNew_ResolvesThroughLLM(t *testing.T) {
	t.Parallel()

	reg, err := New(testFile(), testEnv)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	cfg, err := llm.ResolveConfig(context.Background(), "gemini-pro", reg)
	if err != nil {
		t.Fatalf("ResolveConfig() error: %v", err)
	}
	want := llm.BackendConfig{Model: "models/gemini-pro-001", APIKey: "k1", Endpoint: "https://api.example/v1", Family: llm.FamilyGemini}
	if cfg != want {
		t.Fatalf("ResolveConfig() = %+v, want %+v", cfg, want)
	}

	_, err = llm.ResolveConfig(context.Background(), "no-such-model", reg)
	if !errors.Is(err, llm.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestRegistry_LookupMissing(t *testing.T) {
	t.Parallel()

	reg, err := New(testFile(), testEnv)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err = reg.LookupModel(context.Background(), "missing"); !errors.Is(err, llm.ErrNotFound) {
		t.Fatalf("LookupModel() error = %v, want ErrNotFound", err)
	}
	if _, err = reg.LookupProvider(context.Background(), "missing"); !errors.Is(err, llm.ErrNotFound) {
		t.Fatalf("LookupProvider() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_ModelsSkipsAliases(t *testing.T) {
	t.Parallel()

	reg, err := New(testFile(), testEnv)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	models, err := reg.Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error: %v", err)
	}

	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	got := strings.Join(ids, ",")
	if got != "anthropic/claude-sonnet-4-5,gemini-pro,gpt" {
		t.Fatalf("Models() ids = %s", got)
	}
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    File
		wantErr string
	}{
		{
			name:    "empty provider id",
			file:    File{Providers: []ProviderEntry{{Family: "openai"}}},
			wantErr: "provider id is empty",
		},
		{
			name:    "unknown family",
			file:    File{Providers: []ProviderEntry{{ID: "x", Family: "cohere"}}},
			wantErr: `unsupported provider family "cohere"`,
		},
		{
			name:    "duplicate provider",
			file:    File{Providers: []ProviderEntry{{ID: "x"}, {ID: "x"}}},
			wantErr: `duplicate provider "x"`,
		},
		{
			name: "unknown provider",
			file: File{
				Models: []ModelEntry{{ID: "m", Name: "m-1", Provider: "nope"}},
			},
			wantErr: `references unknown provider "nope"`,
		},
		{
			name: "missing call name",
			file: File{
				Providers: []ProviderEntry{{ID: "x"}},
				Models:    []ModelEntry{{ID: "m", Provider: "x"}},
			},
			wantErr: `model "m" has no call name`,
		},
		{
			name: "bad ref",
			file: File{
				Providers: []ProviderEntry{{ID: "x"}},
				Models:    []ModelEntry{{ID: "m", Ref: "x"}},
			},
			wantErr: "invalid model format",
		},
		{
			name: "alias collides with id",
			file: File{
				Providers: []ProviderEntry{{ID: "x"}},
				Models: []ModelEntry{
					{ID: "a", Name: "a-1", Provider: "x"},
					{ID: "b", Name: "b-1", Provider: "x", Aliases: []string{"a"}},
				},
			},
			wantErr: `duplicate model id "a"`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tc.file, testEnv)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

type recordingWriter struct {
	providers []string
	models    []string
	aliases   map[string][]string
}

func (w *recordingWriter) UpsertProvider(_ context.Context, p database.Provider) error {
	w.providers = append(w.providers, p.ID+":"+p.Family+":"+p.APIKeyEnv)
	return nil
}

func (w *recordingWriter) UpsertModel(_ context.Context, m database.Model) error {
	w.models = append(w.models, m.ID+"="+m.Provider+"/"+m.Name)
	if w.aliases == nil {
		w.aliases = map[string][]string{}
	}
	w.aliases[m.ID] = m.Aliases
	return nil
}

func TestSeed(t *testing.T) {
	t.Parallel()

	f := testFile()
	f.Providers[0].APIKey = ""
	f.Providers[0].APIKeyEnv = "EXAMPLE_KEY"

	w := &recordingWriter{}
	if err := Seed(context.Background(), w, f); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}

	if got := strings.Join(w.providers, ","); got != "example:gemini:EXAMPLE_KEY,openai:openai:OPENAI_API_KEY,anthropic:anthropic:ANTHROPIC_API_KEY" {
		t.Fatalf("providers = %s", got)
	}
	if got := strings.Join(w.models, ","); got != "gemini-pro=example/models/gemini-pro-001,gpt=openai/gpt-5.2,anthropic/claude-sonnet-4-5=anthropic/claude-sonnet-4-5" {
		t.Fatalf("models = %s", got)
	}
	if got := w.aliases["gemini-pro"]; len(got) != 1 || got[0] != "gp" {
		t.Fatalf("aliases = %v", got)
	}
}

func TestSeed_RefusesLiteralKeys(t *testing.T) {
	t.Parallel()

	err := Seed(context.Background(), &recordingWriter{}, testFile())
	if err == nil || !strings.Contains(err.Error(), "api_key cannot be seeded") {
		t.Fatalf("Seed() error = %v", err)
	}
}
