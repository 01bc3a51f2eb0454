package llm

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// Factory builds ContentGenerators for resolved configurations.
type Factory struct {
	env         Environment
	httpOptions HTTPOptions
}

// NewFactory captures env and the diagnostic headers derived from it.
func NewFactory(env Environment) *Factory {
	return &Factory{
		env:         env,
		httpOptions: env.HTTPOptions(),
	}
}

// Environment returns the snapshot the factory was built with.
func (f *Factory) Environment() Environment {
	return f.env
}

// Create instantiates exactly one adapter for cfg. The returned generator is
// fully initialized; on failure no generator is returned.
func (f *Factory) Create(ctx context.Context, cfg BackendConfig, mode AuthMode) (ContentGenerator, error) {
	selected, err := SelectAuthMode(cfg, f.env, mode)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, newConfigError(ErrUnknownModel, nil, "%s backend requires a model name", selected)
	}

	slog.Debug(
		"creating content generator",
		"model", cfg.Model,
		"auth_mode", selected.String(),
		"requested_auth_mode", mode.String(),
		"family", string(cfg.Family),
	)

	opts := f.httpOptions.Clone()
	switch selected {
	case AuthModeAPIKey:
		return f.newDirectAPIGenerator(ctx, cfg, opts)
	case AuthModeOAuthPersonal:
		return f.newCodeAssistGenerator(ctx, cfg, opts, AuthModeOAuthPersonal)
	case AuthModeCodeAssist:
		return f.newCodeAssistGenerator(ctx, cfg, opts, AuthModeCodeAssist)
	case AuthModeVertexAI:
		return f.newVertexGenerator(ctx, cfg, opts)
	default:
		return nil, newConfigError(ErrUnsupportedAuthMode, nil, "no adapter for authentication mode %q", string(selected))
	}
}

func (f *Factory) newDirectAPIGenerator(ctx context.Context, cfg BackendConfig, opts HTTPOptions) (ContentGenerator, error) {
	if cfg.APIKey == "" {
		return nil, newConfigError(ErrMissingCredential, nil, "api-key backend for model %q requires an api key", cfg.Model)
	}
	if cfg.Endpoint != "" {
		if err := validateEndpoint(cfg.Endpoint); err != nil {
			return nil, err
		}
	}

	switch cfg.Family {
	case FamilyOpenAI, "":
		return newOpenAIGenerator(cfg, opts, f.env.HTTPClient), nil
	case FamilyAnthropic:
		return newAnthropicGenerator(cfg, opts, f.env.HTTPClient), nil
	case FamilyGemini:
		return newGeminiGenerator(ctx, cfg, opts, f.env.HTTPClient)
	default:
		return nil, newConfigError(ErrBackendConstruction, nil, "unsupported provider family %q", string(cfg.Family))
	}
}

func (f *Factory) newVertexGenerator(ctx context.Context, cfg BackendConfig, opts HTTPOptions) (ContentGenerator, error) {
	var missing []string
	if f.env.CloudAPIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if f.env.CloudProject == "" {
		missing = append(missing, "GOOGLE_CLOUD_PROJECT")
	}
	if f.env.CloudLocation == "" {
		missing = append(missing, "GOOGLE_CLOUD_LOCATION")
	}
	if len(missing) > 0 {
		return nil, newConfigError(ErrMissingCredential, nil, "vertex-ai backend requires %s", strings.Join(missing, ", "))
	}
	return newVertexAIGenerator(ctx, cfg, f.env, opts)
}

func (f *Factory) newCodeAssistGenerator(ctx context.Context, cfg BackendConfig, opts HTTPOptions, mode AuthMode) (ContentGenerator, error) {
	if f.env.TokenSource == nil {
		return nil, newConfigError(ErrMissingCredential, nil, "%s backend requires oauth credentials", mode)
	}
	endpoint := f.env.CodeAssistEndpoint
	if endpoint == "" {
		endpoint = defaultCodeAssistEndpoint
	}
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	return newCodeAssistClient(ctx, codeAssistOptions{
		model:      cfg.Model,
		endpoint:   endpoint,
		project:    f.env.CloudProject,
		mode:       mode,
		headers:    opts.Headers,
		httpClient: f.env.HTTPClient,
		tokens:     f.env.TokenSource,
	}), nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return newConfigError(ErrBackendConstruction, err, "invalid endpoint %q", endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newConfigError(ErrBackendConstruction, nil, "endpoint %q must use http or https", endpoint)
	}
	if u.Host == "" {
		return newConfigError(ErrBackendConstruction, nil, "endpoint %q has no host", endpoint)
	}
	return nil
}
