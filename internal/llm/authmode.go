package llm

import (
	"strings"
)

// AuthMode names how a caller is authorized and therefore which adapter
// serves its requests. The zero value lets SelectAuthMode pick one.
type AuthMode string

const (
	AuthModeUnspecified   AuthMode = ""
	AuthModeAPIKey        AuthMode = "api-key"
	AuthModeOAuthPersonal AuthMode = "oauth-personal"
	AuthModeCodeAssist    AuthMode = "code-assist"
	AuthModeVertexAI      AuthMode = "vertex-ai"
)

// AuthModes lists every supported mode.
func AuthModes() []AuthMode {
	return []AuthMode{
		AuthModeAPIKey,
		AuthModeOAuthPersonal,
		AuthModeCodeAssist,
		AuthModeVertexAI,
	}
}

func (m AuthMode) String() string {
	if m == AuthModeUnspecified {
		return "unspecified"
	}
	return string(m)
}

func (m AuthMode) valid() bool {
	for _, mode := range AuthModes() {
		if m == mode {
			return true
		}
	}
	return false
}

// ParseAuthMode maps a user supplied name to an AuthMode. An empty string
// yields AuthModeUnspecified.
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return AuthModeUnspecified, nil
	case "api-key", "custom-api-key", "gemini-api-key":
		return AuthModeAPIKey, nil
	case "oauth-personal", "login-with-google":
		return AuthModeOAuthPersonal, nil
	case "code-assist", "gca":
		return AuthModeCodeAssist, nil
	case "vertex-ai", "vertex":
		return AuthModeVertexAI, nil
	default:
		return AuthModeUnspecified, newConfigError(ErrUnsupportedAuthMode, nil, "unknown authentication mode %q", s)
	}
}

// SelectAuthMode picks the mode a Factory uses for cfg.
//
// An explicit mode always wins. Otherwise the first satisfiable entry of the
// following order is used:
//
//  1. code-assist, when the environment indicates it, even if cfg carries
//     an API key, because the proxy manages its own session
//  2. api-key, when cfg has both an API key and an endpoint
//  3. vertex-ai, when the environment holds the full cloud triad
//
// With none satisfiable it fails with ErrUnsupportedAuthMode.
func SelectAuthMode(cfg BackendConfig, env Environment, mode AuthMode) (AuthMode, error) {
	if mode != AuthModeUnspecified {
		if !mode.valid() {
			return AuthModeUnspecified, newConfigError(ErrUnsupportedAuthMode, nil, "unknown authentication mode %q", string(mode))
		}
		return mode, nil
	}

	switch {
	case env.UseCodeAssist:
		return AuthModeCodeAssist, nil
	case cfg.APIKey != "" && cfg.Endpoint != "":
		return AuthModeAPIKey, nil
	case env.HasCloudCredentials():
		return AuthModeVertexAI, nil
	default:
		return AuthModeUnspecified, newConfigError(
			ErrUnsupportedAuthMode,
			nil,
			"no authentication mode available for model %q: need an api key and endpoint, code assist, or GOOGLE_API_KEY, GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION",
			cfg.Model,
		)
	}
}
