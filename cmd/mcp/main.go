package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ansg191/contentgen/internal/config"
	"github.com/ansg191/contentgen/internal/mcpserver"
)

func main() {
	// stdout carries the protocol.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	service, store, err := config.NewService(ctx)
	if err != nil {
		log.Fatalln("Unable to create content service", err)
	}
	defer store.Close()

	version := os.Getenv("CONTENTGEN_VERSION")
	if version == "" {
		version = "dev"
	}
	server := mcpserver.New(service, store, version)
	if err = server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatalln("MCP server failed", err)
	}
}
