package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/ansg191/contentgen/internal/config"
	"github.com/ansg191/contentgen/internal/llm"
	"github.com/ansg191/contentgen/internal/workflows"
)

func main() {
	profile := flag.String("profile", "", "profile name")
	model := flag.String("model", "", "model id, overrides the profile")
	mode := flag.String("mode", "", "auth mode, overrides the profile")
	stream := flag.Bool("stream", false, "stream from the backend")
	flag.Parse()

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		log.Fatalln("Usage: start [-profile name] [-model id] [-mode mode] [-stream] prompt")
	}

	ctx := context.Background()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	c, err := client.Dial(client.Options{HostPort: config.TemporalAddress()})
	if err != nil {
		log.Fatalln("Unable to create client", err)
	}
	defer c.Close()

	options := client.StartWorkflowOptions{
		ID:        "generate-" + uuid.NewString(),
		TaskQueue: config.TaskQueue(),
	}

	log.Println("Starting workflow", "profile", *profile, "model", *model)
	we, err := c.ExecuteWorkflow(
		ctx,
		options,
		workflows.GenerateWorkflow,
		workflows.GenerateWorkflowRequest{
			Profile:  *profile,
			Prompt:   prompt,
			Model:    *model,
			AuthMode: *mode,
			Stream:   *stream,
		},
	)
	if err != nil {
		log.Fatalln("Unable to execute workflow", err)
	}
	log.Println("Started workflow", "WorkflowID", we.GetID(), "RunID", we.GetRunID())

	var result llm.ContentResult
	err = we.Get(ctx, &result)
	if err != nil {
		log.Fatalln("Unable get workflow result", err)
	}
	log.Println("Workflow result:", result.Text)
}
