package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"

	"golang.org/x/oauth2"
)

const clientName = "contentgen"

// googleOAuthEndpoint is the token endpoint used to refresh saved logins.
var googleOAuthEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Environment is the process state a Factory depends on. It is captured once
// and passed explicitly so nothing reads the process environment ad hoc.
type Environment struct {
	Version  string
	Platform string
	Arch     string

	CloudAPIKey   string
	CloudProject  string
	CloudLocation string

	// UseCodeAssist routes unspecified modes to the code assist proxy.
	UseCodeAssist bool

	// CodeAssistEndpoint overrides the code assist server base URL.
	CodeAssistEndpoint string

	// TokenSource authorizes code-assist and oauth-personal requests.
	TokenSource oauth2.TokenSource

	// HTTPClient is used by every adapter when set.
	HTTPClient *http.Client
}

// EnvironmentFromOS snapshots the current process environment.
func EnvironmentFromOS(ctx context.Context) (Environment, error) {
	return EnvironmentFrom(ctx, os.Getenv)
}

// EnvironmentFrom builds an Environment from getenv.
func EnvironmentFrom(ctx context.Context, getenv func(string) string) (Environment, error) {
	env := Environment{
		Version:       strings.TrimSpace(getenv("CONTENTGEN_VERSION")),
		Platform:      runtime.GOOS,
		Arch:          runtime.GOARCH,
		CloudAPIKey:   strings.TrimSpace(getenv("GOOGLE_API_KEY")),
		CloudProject:  strings.TrimSpace(getenv("GOOGLE_CLOUD_PROJECT")),
		CloudLocation: strings.TrimSpace(getenv("GOOGLE_CLOUD_LOCATION")),
		UseCodeAssist: isTruthy(getenv("GOOGLE_GENAI_USE_GCA")),

		CodeAssistEndpoint: strings.TrimSpace(getenv("CODE_ASSIST_ENDPOINT")),
	}
	if env.Version == "" {
		env.Version = runtime.Version()
	}

	if path := strings.TrimSpace(getenv("CONTENTGEN_OAUTH_CREDS")); path != "" {
		ts, err := tokenSourceFromFile(ctx, path, getenv("CONTENTGEN_OAUTH_CLIENT_ID"), getenv("CONTENTGEN_OAUTH_CLIENT_SECRET"))
		if err != nil {
			return Environment{}, err
		}
		env.TokenSource = ts
	} else if token := strings.TrimSpace(getenv("GOOGLE_CLOUD_ACCESS_TOKEN")); token != "" {
		env.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}

	return env, nil
}

// HasCloudCredentials reports whether the full cloud triad is present.
func (e Environment) HasCloudCredentials() bool {
	return e.CloudAPIKey != "" && e.CloudProject != "" && e.CloudLocation != ""
}

// UserAgent is the identification tag attached to every outbound request.
func (e Environment) UserAgent() string {
	version := e.Version
	if version == "" {
		version = runtime.Version()
	}
	platform := e.Platform
	if platform == "" {
		platform = runtime.GOOS
	}
	arch := e.Arch
	if arch == "" {
		arch = runtime.GOARCH
	}
	return fmt.Sprintf("%s/%s (%s; %s)", clientName, version, platform, arch)
}

// HTTPOptions carries the diagnostic headers shared by all adapters.
type HTTPOptions struct {
	Headers http.Header
}

func (e Environment) HTTPOptions() HTTPOptions {
	headers := http.Header{}
	headers.Set("User-Agent", e.UserAgent())
	return HTTPOptions{Headers: headers}
}

// Clone returns a copy safe to hand to a single adapter.
func (o HTTPOptions) Clone() HTTPOptions {
	return HTTPOptions{Headers: o.Headers.Clone()}
}

func tokenSourceFromFile(ctx context.Context, path, clientID, clientSecret string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth credentials %s: %w", path, err)
	}

	var token oauth2.Token
	if err = json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse oauth credentials %s: %w", path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("oauth credentials %s contain no token", path)
	}

	if clientID == "" || token.RefreshToken == "" {
		return oauth2.StaticTokenSource(&token), nil
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     googleOAuthEndpoint,
	}
	return oauth2.ReuseTokenSource(&token, conf.TokenSource(ctx, &token)), nil
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
