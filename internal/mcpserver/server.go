// Package mcpserver exposes the content generators as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ansg191/contentgen/internal/llm"
)

// GeneratorSource resolves a model id and builds a generator for it.
type GeneratorSource interface {
	NewContentGenerator(ctx context.Context, id string, mode llm.AuthMode) (llm.ContentGenerator, error)
}

// Catalog lists the models a registry knows about.
type Catalog interface {
	Models(ctx context.Context) ([]llm.ModelDescriptor, error)
}

type handlers struct {
	source  GeneratorSource
	catalog Catalog
}

// New builds an MCP server with the generate_content, count_tokens,
// embed_content and list_models tools.
func New(source GeneratorSource, catalog Catalog, version string) *mcp.Server {
	h := &handlers{source: source, catalog: catalog}

	server := mcp.NewServer(&mcp.Implementation{Name: "contentgen", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_content",
		Description: "Generate a response from a registered model.",
	}, h.generateContent)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "count_tokens",
		Description: "Count the input tokens of a prompt for a registered model.",
	}, h.countTokens)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "embed_content",
		Description: "Embed one or more texts with a registered embedding model.",
	}, h.embedContent)
	if catalog != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "list_models",
			Description: "List the registered model ids.",
		}, h.listModels)
	}
	return server
}

type GenerateInput struct {
	Model        string   `json:"model" jsonschema:"registered model id"`
	Prompt       string   `json:"prompt" jsonschema:"user prompt"`
	Instructions string   `json:"instructions,omitempty" jsonschema:"system instructions"`
	AuthMode     string   `json:"auth_mode,omitempty" jsonschema:"api-key, oauth-personal, code-assist or vertex-ai"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int64    `json:"max_tokens,omitempty"`
	Stream       bool     `json:"stream,omitempty" jsonschema:"stream from the backend and return the collected result"`
}

type CountTokensInput struct {
	Model        string `json:"model" jsonschema:"registered model id"`
	Prompt       string `json:"prompt" jsonschema:"user prompt"`
	Instructions string `json:"instructions,omitempty" jsonschema:"system instructions"`
	AuthMode     string `json:"auth_mode,omitempty"`
}

type EmbedInput struct {
	Model      string   `json:"model" jsonschema:"registered model id"`
	Inputs     []string `json:"inputs" jsonschema:"texts to embed"`
	Dimensions int64    `json:"dimensions,omitempty"`
	AuthMode   string   `json:"auth_mode,omitempty"`
}

type ListModelsInput struct{}

type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

type ListModelsOutput struct {
	Models []ModelInfo `json:"models"`
}

func (h *handlers) generator(ctx context.Context, model, rawMode string) (llm.ContentGenerator, error) {
	mode, err := llm.ParseAuthMode(rawMode)
	if err != nil {
		return nil, err
	}
	return h.source.NewContentGenerator(ctx, model, mode)
}

func (h *handlers) generateContent(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, llm.ContentResult, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, llm.ContentResult{}, fmt.Errorf("prompt is empty")
	}
	gen, err := h.generator(ctx, in.Model, in.AuthMode)
	if err != nil {
		return nil, llm.ContentResult{}, err
	}

	req := llm.GenerateRequest{
		Messages:     []llm.Message{llm.TextMessage(llm.RoleUser, in.Prompt)},
		Temperature:  in.Temperature,
		MaxTokens:    in.MaxTokens,
		Instructions: in.Instructions,
	}

	var result *llm.ContentResult
	if in.Stream {
		result, err = llm.Collect(in.Model, gen.GenerateContentStream(ctx, req))
	} else {
		result, err = gen.GenerateContent(ctx, req)
	}
	if err != nil {
		return nil, llm.ContentResult{}, err
	}
	return nil, *result, nil
}

func (h *handlers) countTokens(ctx context.Context, _ *mcp.CallToolRequest, in CountTokensInput) (*mcp.CallToolResult, llm.TokenCount, error) {
	gen, err := h.generator(ctx, in.Model, in.AuthMode)
	if err != nil {
		return nil, llm.TokenCount{}, err
	}
	count, err := gen.CountTokens(ctx, llm.CountTokensRequest{
		Messages:     []llm.Message{llm.TextMessage(llm.RoleUser, in.Prompt)},
		Instructions: in.Instructions,
	})
	if err != nil {
		return nil, llm.TokenCount{}, err
	}
	return nil, *count, nil
}

func (h *handlers) embedContent(ctx context.Context, _ *mcp.CallToolRequest, in EmbedInput) (*mcp.CallToolResult, llm.EmbeddingResult, error) {
	gen, err := h.generator(ctx, in.Model, in.AuthMode)
	if err != nil {
		return nil, llm.EmbeddingResult{}, err
	}
	result, err := gen.EmbedContent(ctx, llm.EmbedRequest{Inputs: in.Inputs, Dimensions: in.Dimensions})
	if err != nil {
		return nil, llm.EmbeddingResult{}, err
	}
	return nil, *result, nil
}

func (h *handlers) listModels(ctx context.Context, _ *mcp.CallToolRequest, _ ListModelsInput) (*mcp.CallToolResult, ListModelsOutput, error) {
	models, err := h.catalog.Models(ctx)
	if err != nil {
		return nil, ListModelsOutput{}, err
	}
	out := ListModelsOutput{Models: make([]ModelInfo, 0, len(models))}
	for _, m := range models {
		out.Models = append(out.Models, ModelInfo{ID: m.ID, Name: m.Name, Provider: m.Provider})
	}
	return nil, out, nil
}
