package llm

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"google.golang.org/genai"
)

// genAIGenerator serves the gemini family and vertex-ai mode.
type genAIGenerator struct {
	name   string
	model  string
	client *genai.Client
}

var _ ContentGenerator = (*genAIGenerator)(nil)

func newGeminiGenerator(ctx context.Context, cfg BackendConfig, opts HTTPOptions, httpClient *http.Client) (*genAIGenerator, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.Endpoint,
			Headers: opts.Headers,
		},
	}
	return newGenAIGenerator(ctx, string(FamilyGemini), cfg.Model, clientConfig)
}

// newVertexAIGenerator talks to the regional Vertex endpoint with the cloud
// API key, billing requests to the configured project.
func newVertexAIGenerator(ctx context.Context, cfg BackendConfig, env Environment, opts HTTPOptions) (*genAIGenerator, error) {
	headers := opts.Headers
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("X-Goog-User-Project", env.CloudProject)

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/", env.CloudLocation)
	}
	clientConfig := &genai.ClientConfig{
		APIKey:     env.CloudAPIKey,
		Backend:    genai.BackendVertexAI,
		HTTPClient: env.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
			Headers: headers,
		},
	}
	return newGenAIGenerator(ctx, string(AuthModeVertexAI), cfg.Model, clientConfig)
}

func newGenAIGenerator(ctx context.Context, name, model string, clientConfig *genai.ClientConfig) (*genAIGenerator, error) {
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, newConfigError(ErrBackendConstruction, err, "%s client", name)
	}
	return &genAIGenerator{name: name, model: model, client: client}, nil
}

func (g *genAIGenerator) GenerateContent(ctx context.Context, req GenerateRequest) (*ContentResult, error) {
	model := callModel(g.model, req.Model)
	system, contents, err := genAIContents(req.Messages, req.Instructions)
	if err != nil {
		return nil, err
	}
	config, err := genAIGenerateConfig(req, system)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%s generate content: %w", g.name, err)
	}
	return genAIResult(model, resp)
}

func (g *genAIGenerator) GenerateContentStream(ctx context.Context, req GenerateRequest) iter.Seq2[*ContentChunk, error] {
	model := callModel(g.model, req.Model)
	system, contents, err := genAIContents(req.Messages, req.Instructions)
	if err != nil {
		return errorSeq(err)
	}
	config, err := genAIGenerateConfig(req, system)
	if err != nil {
		return errorSeq(err)
	}

	return func(yield func(*ContentChunk, error) bool) {
		// The SDK sequence closes its response body when the range ends.
		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				yield(nil, fmt.Errorf("%s stream content: %w", g.name, err))
				return
			}
			chunk, err := genAIChunk(resp)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (g *genAIGenerator) CountTokens(ctx context.Context, req CountTokensRequest) (*TokenCount, error) {
	system, contents, err := genAIContents(req.Messages, req.Instructions)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.CountTokens(ctx, callModel(g.model, req.Model), genAICountContents(system, contents), nil)
	if err != nil {
		return nil, fmt.Errorf("%s count tokens: %w", g.name, err)
	}
	return &TokenCount{TotalTokens: int64(resp.TotalTokens)}, nil
}

func (g *genAIGenerator) EmbedContent(ctx context.Context, req EmbedRequest) (*EmbeddingResult, error) {
	if err := validateEmbedRequest(req); err != nil {
		return nil, err
	}
	model := callModel(g.model, req.Model)
	contents := make([]*genai.Content, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		contents = append(contents, genai.NewContentFromText(input, genai.RoleUser))
	}
	var config *genai.EmbedContentConfig
	if req.Dimensions > 0 {
		config = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(req.Dimensions))}
	}

	resp, err := g.client.Models.EmbedContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%s embed content: %w", g.name, err)
	}
	if len(resp.Embeddings) != len(req.Inputs) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", g.name, len(resp.Embeddings), len(req.Inputs))
	}

	embeddings := make([]Embedding, 0, len(resp.Embeddings))
	for _, embedding := range resp.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, fmt.Errorf("%s returned an empty embedding", g.name)
		}
		embeddings = append(embeddings, Embedding{Values: embedding.Values})
	}
	return &EmbeddingResult{Model: model, Embeddings: embeddings}, nil
}
