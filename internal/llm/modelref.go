package llm

import (
	"fmt"
	"strings"
)

// ModelRef is the "<provider>/<call name>" shorthand used by registry
// files. The call name may itself contain slashes.
type ModelRef struct {
	Raw      string
	Provider string
	Model    string
}

func ParseModelRef(model string) (ModelRef, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return ModelRef{}, fmt.Errorf("model is empty")
	}

	provider, name, ok := strings.Cut(model, "/")
	if !ok {
		return ModelRef{}, fmt.Errorf("invalid model format %q: expected <provider>/<model>", model)
	}
	if provider == "" {
		return ModelRef{}, fmt.Errorf("provider is empty in %q", model)
	}
	if name == "" {
		return ModelRef{}, fmt.Errorf("model id is empty in %q", model)
	}
	return ModelRef{Raw: model, Provider: provider, Model: name}, nil
}

// ParseFamily maps a registry family name to a Family. An empty name is the
// openai family.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case "", FamilyOpenAI:
		return FamilyOpenAI, nil
	case FamilyAnthropic:
		return FamilyAnthropic, nil
	case FamilyGemini, "google":
		return FamilyGemini, nil
	default:
		return "", fmt.Errorf("unsupported provider family %q", s)
	}
}
