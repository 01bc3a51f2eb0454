package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/ansg191/contentgen/internal/config"
	"github.com/ansg191/contentgen/internal/llm"
)

func main() {
	profileName := flag.String("profile", "", "profile name")
	model := flag.String("model", "", "model id, overrides the profile")
	mode := flag.String("mode", "", "auth mode: api-key, oauth-personal, code-assist or vertex-ai")
	instructions := flag.String("instructions", "", "system instructions, override the profile")
	stream := flag.Bool("stream", true, "print chunks as they arrive")
	count := flag.Bool("count", false, "count input tokens instead of generating")
	embed := flag.Bool("embed", false, "embed each argument instead of generating")
	list := flag.Bool("list", false, "list registered models")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	service, store, err := config.NewService(ctx)
	if err != nil {
		log.Fatalln("Unable to create content service", err)
	}
	defer store.Close()

	if *list {
		models, err := store.Models(ctx)
		if err != nil {
			log.Fatalln("Unable to list models", err)
		}
		for _, m := range models {
			fmt.Printf("%s\t%s\t%s\n", m.ID, m.Provider, m.Name)
		}
		return
	}

	profile := &config.Profile{}
	if *profileName != "" {
		if profile, err = config.LoadProfile(*profileName); err != nil {
			log.Fatalln("Unable to load profile", err)
		}
	}
	if *model != "" {
		profile.Model = *model
	}
	if *mode != "" {
		profile.AuthMode = *mode
	}
	if *instructions != "" {
		profile.Instructions = *instructions
	}
	authMode, err := profile.Mode()
	if err != nil {
		log.Fatalln("Invalid auth mode", err)
	}

	gen, err := service.NewContentGenerator(ctx, profile.Model, authMode)
	if err != nil {
		log.Fatalln("Unable to create content generator", err)
	}

	if *embed {
		result, err := gen.EmbedContent(ctx, llm.EmbedRequest{Inputs: flag.Args()})
		if err != nil {
			log.Fatalln("Unable to embed content", err)
		}
		for i, e := range result.Embeddings {
			fmt.Printf("%d\t%d dims\t%v\n", i, len(e.Values), head(e.Values, 4))
		}
		return
	}

	prompt, err := readPrompt(flag.Args(), os.Stdin)
	if err != nil {
		log.Fatalln("Unable to read prompt", err)
	}
	req := profile.Request(llm.TextMessage(llm.RoleUser, prompt))

	if *count {
		tokens, err := gen.CountTokens(ctx, llm.CountTokensRequest{Messages: req.Messages, Instructions: req.Instructions})
		if err != nil {
			log.Fatalln("Unable to count tokens", err)
		}
		fmt.Println(tokens.TotalTokens)
		return
	}

	if !*stream {
		result, err := gen.GenerateContent(ctx, req)
		if err != nil {
			log.Fatalln("Unable to generate content", err)
		}
		fmt.Println(result.Text)
		return
	}

	for chunk, err := range gen.GenerateContentStream(ctx, req) {
		if err != nil {
			log.Fatalln("Stream failed", err)
		}
		fmt.Print(chunk.Text)
		if chunk.Usage != nil {
			log.Println("Usage", "input", chunk.Usage.InputTokens, "output", chunk.Usage.OutputTokens)
		}
	}
	fmt.Println()
}

// readPrompt joins args, or reads stdin when there are none.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	return prompt, nil
}

func head(values []float32, n int) []float32 {
	if len(values) < n {
		return values
	}
	return values[:n]
}
