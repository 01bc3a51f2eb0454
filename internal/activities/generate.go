package activities

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/ansg191/contentgen/internal/llm"
)

// GeneratorSource resolves a model id and builds a generator for it.
// *llm.Service satisfies it.
type GeneratorSource interface {
	NewContentGenerator(ctx context.Context, id string, mode llm.AuthMode) (llm.ContentGenerator, error)
}

// Activities exposes the generator operations to Temporal. Register the
// pointer with a worker to get one activity per method.
type Activities struct {
	source            GeneratorSource
	heartbeatInterval time.Duration
}

func New(source GeneratorSource) *Activities {
	return &Activities{source: source, heartbeatInterval: providerHeartbeatInterval}
}

// Target names the model and auth mode an activity call runs against.
type Target struct {
	ModelID  string       `json:"model_id"`
	AuthMode llm.AuthMode `json:"auth_mode,omitempty"`
}

type GenerateRequest struct {
	Target
	Request llm.GenerateRequest `json:"request"`
}

type CountTokensRequest struct {
	Target
	Request llm.CountTokensRequest `json:"request"`
}

type EmbedRequest struct {
	Target
	Request llm.EmbedRequest `json:"request"`
}

// StreamProgress is the heartbeat detail recorded while streaming.
type StreamProgress struct {
	ModelID string `json:"model_id"`
	Chunks  int    `json:"chunks"`
	Chars   int    `json:"chars"`
}

func (a *Activities) generator(ctx context.Context, target Target) (llm.ContentGenerator, error) {
	gen, err := a.source.NewContentGenerator(ctx, target.ModelID, target.AuthMode)
	if err != nil {
		activity.GetLogger(ctx).Error("Failed to create content generator", "model", target.ModelID, "auth_mode", target.AuthMode.String(), "error", err)
		return nil, llm.ClassifyProviderError(err)
	}
	return gen, nil
}

func (a *Activities) details(target Target, phase string) func() any {
	return func() any {
		return map[string]any{
			"model":     target.ModelID,
			"auth_mode": target.AuthMode.String(),
			"phase":     phase,
		}
	}
}

// GenerateContent runs one non-streaming generation.
func (a *Activities) GenerateContent(ctx context.Context, req GenerateRequest) (*llm.ContentResult, error) {
	gen, err := a.generator(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	var result *llm.ContentResult
	err = withActivityHeartbeat(ctx, a.heartbeatInterval, a.details(req.Target, "generate_content"), func() error {
		var callErr error
		result, callErr = gen.GenerateContent(ctx, req.Request)
		return callErr
	})
	if err != nil {
		return nil, llm.ClassifyProviderError(err)
	}
	return result, nil
}

// StreamContent streams a generation and returns the collected result. A
// heartbeat carrying the progress so far is recorded for every chunk.
func (a *Activities) StreamContent(ctx context.Context, req GenerateRequest) (*llm.ContentResult, error) {
	gen, err := a.generator(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	progress := StreamProgress{ModelID: req.Target.ModelID}
	snapshot := func() any {
		mu.Lock()
		defer mu.Unlock()
		return progress
	}

	var result *llm.ContentResult
	err = withActivityHeartbeat(ctx, a.heartbeatInterval, snapshot, func() error {
		chunks := func(yield func(*llm.ContentChunk, error) bool) {
			for chunk, err := range gen.GenerateContentStream(ctx, req.Request) {
				if err == nil {
					mu.Lock()
					progress.Chunks++
					progress.Chars += len(chunk.Text)
					mu.Unlock()
					safeRecordHeartbeat(ctx, snapshot())
				}
				if !yield(chunk, err) {
					return
				}
			}
		}

		var collectErr error
		result, collectErr = llm.Collect(req.Request.Model, chunks)
		return collectErr
	})
	if err != nil {
		return nil, llm.ClassifyProviderError(err)
	}
	if result.Model == "" {
		result.Model = req.Target.ModelID
	}
	return result, nil
}

func (a *Activities) CountTokens(ctx context.Context, req CountTokensRequest) (*llm.TokenCount, error) {
	gen, err := a.generator(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	var count *llm.TokenCount
	err = withActivityHeartbeat(ctx, a.heartbeatInterval, a.details(req.Target, "count_tokens"), func() error {
		var callErr error
		count, callErr = gen.CountTokens(ctx, req.Request)
		return callErr
	})
	if err != nil {
		return nil, llm.ClassifyProviderError(err)
	}
	return count, nil
}

func (a *Activities) EmbedContent(ctx context.Context, req EmbedRequest) (*llm.EmbeddingResult, error) {
	gen, err := a.generator(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	var result *llm.EmbeddingResult
	err = withActivityHeartbeat(ctx, a.heartbeatInterval, a.details(req.Target, "embed_content"), func() error {
		var callErr error
		result, callErr = gen.EmbedContent(ctx, req.Request)
		return callErr
	})
	if err != nil {
		return nil, llm.ClassifyProviderError(err)
	}
	return result, nil
}
