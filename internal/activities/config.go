package activities

import (
	"context"

	"github.com/ansg191/contentgen/internal/config"
)

// GetProfile is a Temporal activity that loads a generation profile.
func GetProfile(ctx context.Context, name string) (*config.Profile, error) {
	return config.LoadProfile(name)
}
