package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/ansg191/contentgen/internal/activities"
	"github.com/ansg191/contentgen/internal/config"
	"github.com/ansg191/contentgen/internal/database"
	"github.com/ansg191/contentgen/internal/registry"
	"github.com/ansg191/contentgen/internal/workflows"
)

func main() {
	ctx := context.Background()

	if seed := os.Getenv("CONTENTGEN_REGISTRY_SEED"); seed != "" {
		if err := seedRegistry(ctx, seed); err != nil {
			log.Fatalln("Unable to seed registry", err)
		}
	}

	service, store, err := config.NewService(ctx)
	if err != nil {
		log.Fatalln("Unable to create content service", err)
	}
	defer store.Close()

	c, err := client.Dial(client.Options{HostPort: config.TemporalAddress()})
	if err != nil {
		log.Fatalln("Unable to create client", err)
	}
	defer c.Close()

	w := worker.New(c, config.TaskQueue(), worker.Options{})

	w.RegisterWorkflow(workflows.GenerateWorkflow)
	w.RegisterActivity(activities.New(service))
	w.RegisterActivity(activities.GetProfile)

	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalln("Unable to start worker", err)
	}
}

// seedRegistry copies a registry file into the database registry.
func seedRegistry(ctx context.Context, source string) error {
	databaseURL := config.RegistrySource()
	if !registry.IsDatabaseURL(databaseURL) {
		return fmt.Errorf("CONTENTGEN_REGISTRY must be a postgres URL to seed, got %q", databaseURL)
	}
	if err := database.EnsureMigrations(databaseURL); err != nil {
		return err
	}
	db, err := database.NewPostgresDatabase(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	f, err := registry.Decode(data, registry.FormatFor(source))
	if err != nil {
		return err
	}
	log.Println("Seeding registry", "source", source, "providers", len(f.Providers), "models", len(f.Models))
	return registry.Seed(ctx, db, f)
}
