package activities

import (
	"context"
	"errors"
	"iter"
	"testing"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ansg191/contentgen/internal/llm"
)

type fakeGenerator struct {
	chunks []string
	err    error
}

func (g *fakeGenerator) GenerateContent(_ context.Context, req llm.GenerateRequest) (*llm.ContentResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.ContentResult{Model: "fake-1", Text: "echo: " + req.Messages[0].Text(), StopReason: "stop"}, nil
}

func (g *fakeGenerator) GenerateContentStream(context.Context, llm.GenerateRequest) iter.Seq2[*llm.ContentChunk, error] {
	return func(yield func(*llm.ContentChunk, error) bool) {
		for i, text := range g.chunks {
			chunk := &llm.ContentChunk{Text: text}
			if i == len(g.chunks)-1 {
				chunk.StopReason = "stop"
				chunk.Usage = &llm.Usage{InputTokens: 3, OutputTokens: int64(len(g.chunks)), TotalTokens: 3 + int64(len(g.chunks))}
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if g.err != nil {
			yield(nil, g.err)
		}
	}
}

func (g *fakeGenerator) CountTokens(context.Context, llm.CountTokensRequest) (*llm.TokenCount, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.TokenCount{TotalTokens: 42}, nil
}

func (g *fakeGenerator) EmbedContent(_ context.Context, req llm.EmbedRequest) (*llm.EmbeddingResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	embeddings := make([]llm.Embedding, len(req.Inputs))
	for i := range embeddings {
		embeddings[i] = llm.Embedding{Values: []float32{float32(i), 1}}
	}
	return &llm.EmbeddingResult{Model: "fake-embed", Embeddings: embeddings}, nil
}

type fakeSource struct {
	gen      llm.ContentGenerator
	err      error
	gotModel string
	gotMode  llm.AuthMode
}

func (s *fakeSource) NewContentGenerator(_ context.Context, id string, mode llm.AuthMode) (llm.ContentGenerator, error) {
	s.gotModel = id
	s.gotMode = mode
	if s.err != nil {
		return nil, s.err
	}
	return s.gen, nil
}

func newTestActivities(source GeneratorSource) (*Activities, *testsuite.TestActivityEnvironment) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	acts := New(source)
	env.RegisterActivity(acts)
	return acts, env
}

func configError(t *testing.T) error {
	t.Helper()
	_, err := llm.ParseAuthMode("telepathy")
	if !llm.IsConfigError(err) {
		t.Fatalf("expected a config error, got %v", err)
	}
	return err
}

func requireNonRetryable(t *testing.T, err error, wantType string) {
	t.Helper()

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected application error, got %T: %v", err, err)
	}
	if !appErr.NonRetryable() {
		t.Fatalf("expected non-retryable application error")
	}
	if appErr.Type() != wantType {
		t.Fatalf("expected type %q, got %q", wantType, appErr.Type())
	}
}

func TestGenerateContent(t *testing.T) {
	t.Parallel()

	source := &fakeSource{gen: &fakeGenerator{}}
	acts, env := newTestActivities(source)

	val, err := env.ExecuteActivity(acts.GenerateContent, GenerateRequest{
		Target:  Target{ModelID: "gemini-pro", AuthMode: llm.AuthModeVertexAI},
		Request: llm.GenerateRequest{Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "hi")}},
	})
	if err != nil {
		t.Fatalf("GenerateContent() error: %v", err)
	}

	var result llm.ContentResult
	if err = val.Get(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Text != "echo: hi" {
		t.Fatalf("expected echoed text, got %q", result.Text)
	}
	if source.gotModel != "gemini-pro" || source.gotMode != llm.AuthModeVertexAI {
		t.Fatalf("unexpected target %q/%q", source.gotModel, source.gotMode)
	}
}

func TestStreamContent_CollectsChunks(t *testing.T) {
	t.Parallel()

	acts, env := newTestActivities(&fakeSource{gen: &fakeGenerator{chunks: []string{"a", "b", "c"}}})

	val, err := env.ExecuteActivity(acts.StreamContent, GenerateRequest{
		Target:  Target{ModelID: "gpt"},
		Request: llm.GenerateRequest{Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "hi")}},
	})
	if err != nil {
		t.Fatalf("StreamContent() error: %v", err)
	}

	var result llm.ContentResult
	if err = val.Get(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Text != "abc" || result.StopReason != "stop" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Usage.TotalTokens != 6 {
		t.Fatalf("expected usage from final chunk, got %+v", result.Usage)
	}
	if result.Model != "gpt" {
		t.Fatalf("expected model id fallback, got %q", result.Model)
	}
}

func TestStreamContent_MidStreamError(t *testing.T) {
	t.Parallel()

	acts, env := newTestActivities(&fakeSource{gen: &fakeGenerator{chunks: []string{"a"}, err: errors.New("connection reset")}})

	_, err := env.ExecuteActivity(acts.StreamContent, GenerateRequest{
		Target:  Target{ModelID: "gpt"},
		Request: llm.GenerateRequest{Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "hi")}},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable() {
		t.Fatalf("transport errors must stay retryable")
	}
}

func TestCountTokensAndEmbed(t *testing.T) {
	t.Parallel()

	acts, env := newTestActivities(&fakeSource{gen: &fakeGenerator{}})

	val, err := env.ExecuteActivity(acts.CountTokens, CountTokensRequest{
		Target:  Target{ModelID: "gpt"},
		Request: llm.CountTokensRequest{Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "hi")}},
	})
	if err != nil {
		t.Fatalf("CountTokens() error: %v", err)
	}
	var count llm.TokenCount
	if err = val.Get(&count); err != nil || count.TotalTokens != 42 {
		t.Fatalf("unexpected count %+v (%v)", count, err)
	}

	val, err = env.ExecuteActivity(acts.EmbedContent, EmbedRequest{
		Target:  Target{ModelID: "embed"},
		Request: llm.EmbedRequest{Inputs: []string{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("EmbedContent() error: %v", err)
	}
	var embeddings llm.EmbeddingResult
	if err = val.Get(&embeddings); err != nil {
		t.Fatalf("failed to decode embeddings: %v", err)
	}
	if len(embeddings.Embeddings) != 2 || embeddings.Embeddings[1].Values[0] != 1 {
		t.Fatalf("unexpected embeddings %+v", embeddings)
	}
}

func TestActivities_ConfigErrorsAreNonRetryable(t *testing.T) {
	t.Parallel()

	cfgErr := configError(t)
	tests := []struct {
		name   string
		source *fakeSource
	}{
		{name: "resolution", source: &fakeSource{err: cfgErr}},
		{name: "operation", source: &fakeSource{gen: &fakeGenerator{err: cfgErr}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			acts, env := newTestActivities(tc.source)
			_, err := env.ExecuteActivity(acts.EmbedContent, EmbedRequest{
				Target:  Target{ModelID: "claude"},
				Request: llm.EmbedRequest{Inputs: []string{"a"}},
			})
			requireNonRetryable(t, err, llm.ConfigErrorType)
		})
	}
}

func TestWithActivityHeartbeat_OutsideActivity(t *testing.T) {
	t.Parallel()

	calls := 0
	err := withActivityHeartbeat(context.Background(), providerHeartbeatInterval, func() any { return "x" }, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected fn to run once without error, got calls=%d err=%v", calls, err)
	}
}
