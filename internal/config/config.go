package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.temporal.io/sdk/client"
	"gopkg.in/yaml.v3"

	"github.com/ansg191/contentgen/internal/llm"
	"github.com/ansg191/contentgen/internal/registry"
)

// Profile is a named set of generation settings.
type Profile struct {
	Instructions string   `yaml:"instructions" json:"instructions"`
	Model        string   `yaml:"model" json:"model"`
	AuthMode     string   `yaml:"auth_mode,omitempty" json:"auth_mode,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens    int64    `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// Mode parses the profile's auth mode. An empty mode selects by fallback.
func (p *Profile) Mode() (llm.AuthMode, error) {
	return llm.ParseAuthMode(p.AuthMode)
}

// Request builds a generation request from the profile and the caller's
// messages. Model is a registry id, not a call name, so it is left for the
// generator to fill in.
func (p *Profile) Request(messages ...llm.Message) llm.GenerateRequest {
	return llm.GenerateRequest{
		Messages:     messages,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		Instructions: p.Instructions,
	}
}

// getProfileDir returns the profile directory from env var or default
func getProfileDir() string {
	if dir := os.Getenv("CONTENTGEN_PROFILE_DIR"); dir != "" {
		return dir
	}
	return "config/profiles/"
}

// RegistrySource returns the registry location from env var or default.
func RegistrySource() string {
	if source := os.Getenv("CONTENTGEN_REGISTRY"); source != "" {
		return source
	}
	return registry.DefaultSource
}

// TemporalAddress returns the Temporal frontend address from env var or default.
func TemporalAddress() string {
	if address := os.Getenv("TEMPORAL_ADDRESS"); address != "" {
		return address
	}
	return client.DefaultHostPort
}

// TaskQueue returns the Temporal task queue from env var or default.
func TaskQueue() string {
	if queue := os.Getenv("CONTENTGEN_TASK_QUEUE"); queue != "" {
		return queue
	}
	return "contentgen"
}

// loadProfile loads a profile from a YAML file
func loadProfile(name string) (*Profile, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid profile name %q", name)
	}

	profileDir := getProfileDir()
	profilePath := filepath.Join(profileDir, name+".yaml")

	data, err := os.ReadFile(profilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found for profile %q: %s", name, profilePath)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", profilePath, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", profilePath, err)
	}
	if _, err := profile.Mode(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", profilePath, err)
	}

	return &profile, nil
}

// LoadProfile loads the named profile from the profile directory.
func LoadProfile(name string) (*Profile, error) {
	return loadProfile(name)
}
