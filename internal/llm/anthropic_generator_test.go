package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

func TestAnthropicMaxTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		requested int64
		want      int64
	}{
		{name: "default", requested: 0, want: anthropicDefaultMaxTokens},
		{name: "negative", requested: -1, want: anthropicDefaultMaxTokens},
		{name: "explicit", requested: 512, want: 512},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := anthropicMaxTokens(tc.requested); got != tc.want {
				t.Fatalf("anthropicMaxTokens(%d) = %d, want %d", tc.requested, got, tc.want)
			}
		})
	}
}

func TestAnthropicToolSchemaAlwaysIncludesObjectType(t *testing.T) {
	t.Parallel()

	schema := anthropicToolSchema(nil)
	if string(schema.Type) != "object" {
		t.Fatalf("expected input schema type object, got %q", schema.Type)
	}
}

func TestAnthropicToolsFromCanonical_CachesLastTool(t *testing.T) {
	t.Parallel()

	tools := []ToolDefinition{
		{Name: "one"},
		{Name: "two"},
	}
	got := anthropicToolsFromCanonical(tools)
	if len(got) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(got))
	}
	if got[0].OfTool == nil || got[1].OfTool == nil {
		t.Fatalf("expected tool variants")
	}
	if got[0].OfTool.CacheControl.Type != "" {
		t.Fatalf("expected no cache control on first tool")
	}
	if string(got[1].OfTool.CacheControl.Type) != "ephemeral" {
		t.Fatalf("expected cache control on last tool")
	}
}

func TestAnthropicMessagesFromTranscript_CachesStablePrefix(t *testing.T) {
	t.Parallel()

	transcript := []Message{
		TextMessage(RoleSystem, "stable system"),
		TextMessage(RoleUser, "stable user"),
		TextMessage(RoleUser, "new user"),
	}
	msgs, system, err := anthropicMessagesFromTranscript(transcript, "", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(system) == 0 || string(system[len(system)-1].CacheControl.Type) != "ephemeral" {
		t.Fatalf("expected system cache control")
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 anthropic messages, got %d", len(msgs))
	}
	lastStable := msgs[0]
	if len(lastStable.Content) == 0 || lastStable.Content[0].OfText == nil {
		t.Fatalf("expected text content in stable message")
	}
	if string(lastStable.Content[len(lastStable.Content)-1].OfText.CacheControl.Type) != "ephemeral" {
		t.Fatalf("expected stable prefix cache control on last content block")
	}
}

func TestAnthropicSupportsAdaptiveThinking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{model: "claude-opus-4-6", want: true},
		{model: "claude-sonnet-4-6", want: true},
		{model: "claude-sonnet-4-5", want: false},
		{model: "claude-haiku-4-5", want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.model, func(t *testing.T) {
			t.Parallel()
			if got := anthropicSupportsAdaptiveThinking(tc.model); got != tc.want {
				t.Fatalf("anthropicSupportsAdaptiveThinking(%q) = %v, want %v", tc.model, got, tc.want)
			}
		})
	}
}

func TestAnthropicThinkingConfig(t *testing.T) {
	t.Parallel()

	config, ok := anthropicThinkingConfig("claude-sonnet-4-6")
	if !ok {
		t.Fatalf("expected adaptive thinking config for claude-sonnet-4-6")
	}
	if config.OfAdaptive == nil {
		t.Fatalf("expected adaptive thinking variant")
	}
	if got := config.GetType(); got == nil || *got != "adaptive" {
		t.Fatalf("expected adaptive thinking type, got %v", got)
	}

	if _, ok := anthropicThinkingConfig("claude-sonnet-4-5"); ok {
		t.Fatalf("did not expect thinking config for unsupported model")
	}
}

func TestAnthropicContentBlocksFromParts_Thinking(t *testing.T) {
	t.Parallel()

	parts := []ContentPart{
		ThinkingPart("sig-123", "reasoning"),
		RedactedThinkingPart("redacted-payload"),
	}
	blocks, err := anthropicContentBlocksFromParts(parts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].OfThinking == nil {
		t.Fatalf("expected thinking block")
	}
	if blocks[0].OfThinking.Signature != "sig-123" {
		t.Fatalf("unexpected signature: %q", blocks[0].OfThinking.Signature)
	}
	if blocks[1].OfRedactedThinking == nil {
		t.Fatalf("expected redacted thinking block")
	}
	if blocks[1].OfRedactedThinking.Data != "redacted-payload" {
		t.Fatalf("unexpected redacted payload: %q", blocks[1].OfRedactedThinking.Data)
	}
}

func TestAnthropicContentBlocksFromParts_ThinkingValidation(t *testing.T) {
	t.Parallel()

	if _, err := anthropicContentBlocksFromParts([]ContentPart{{Type: ContentTypeThinking, Thinking: "x"}}); err == nil {
		t.Fatalf("expected error for thinking block without signature")
	}
	if _, err := anthropicContentBlocksFromParts([]ContentPart{{Type: ContentTypeRedactedThinking}}); err == nil {
		t.Fatalf("expected error for redacted thinking block without data")
	}
}

func TestAnthropicMessagesFromTranscript_PreservesThinkingWithToolUse(t *testing.T) {
	t.Parallel()

	transcript := []Message{
		{
			Role:    RoleAssistant,
			Content: []ContentPart{ThinkingPart("sig-123", "reasoning")},
			ToolCalls: []ToolCall{
				{
					CallID:    "call-1",
					Name:      "search",
					Arguments: `{"q":"hello"}`,
				},
			},
		},
	}

	msgs, _, err := anthropicMessagesFromTranscript(transcript, "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Content) != 2 {
		t.Fatalf("expected 2 assistant content blocks, got %d", len(msgs[0].Content))
	}
	if msgs[0].Content[0].OfThinking == nil {
		t.Fatalf("expected first block to be thinking")
	}
	if msgs[0].Content[1].OfToolUse == nil {
		t.Fatalf("expected second block to be tool_use")
	}
}

func TestAnthropicMessagesFromTranscript_ThinkingTextAndToolUseOrder(t *testing.T) {
	t.Parallel()

	transcript := []Message{
		{
			Role: RoleAssistant,
			Content: []ContentPart{
				ThinkingPart("sig-abc", "internal reasoning"),
				TextPart("Now let me read the resume.typ file for context on the formatting:"),
			},
			ToolCalls: []ToolCall{
				{
					CallID:    "toolu_013pyGtVqmcLCiawGqAeTPpy",
					Name:      "get_file_contents",
					Arguments: `{"owner":"ansg191","path":"resume.typ","ref":"refs/heads/resume-pal-bse-def","repo":"resume"}`,
				},
			},
		},
	}

	msgs, _, err := anthropicMessagesFromTranscript(transcript, "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Content) != 3 {
		t.Fatalf("expected 3 assistant content blocks, got %d", len(msgs[0].Content))
	}
	if msgs[0].Content[0].OfThinking == nil {
		t.Fatalf("expected block 0 to be thinking")
	}
	if msgs[0].Content[1].OfText == nil {
		t.Fatalf("expected block 1 to be text")
	}
	if msgs[0].Content[2].OfToolUse == nil {
		t.Fatalf("expected block 2 to be tool_use")
	}
}

func TestAnthropicMessagesFromTranscript_AppendsTerminalTextAfterTrailingThinking(t *testing.T) {
	t.Parallel()

	transcript := []Message{
		{
			Role: RoleAssistant,
			Content: []ContentPart{
				TextPart("answer"),
				ThinkingPart("sig-123", "reasoning"),
			},
		},
	}

	msgs, _, err := anthropicMessagesFromTranscript(transcript, "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].Content) != 3 {
		t.Fatalf("expected trailing thinking block to be preserved with terminal text, got %d blocks", len(msgs[0].Content))
	}
	if msgs[0].Content[0].OfText == nil {
		t.Fatalf("expected first block to be text")
	}
	if msgs[0].Content[1].OfThinking == nil {
		t.Fatalf("expected second block to be thinking")
	}
	if msgs[0].Content[2].OfText == nil || msgs[0].Content[2].OfText.Text != "" {
		t.Fatalf("expected final terminal text block to be empty text")
	}
}

func TestAnthropicMessagesFromTranscript_PreservesThinkingOnlyAssistantTurn(t *testing.T) {
	t.Parallel()

	transcript := []Message{
		{
			Role:    RoleAssistant,
			Content: []ContentPart{ThinkingPart("sig-123", "reasoning")},
		},
	}

	msgs, _, err := anthropicMessagesFromTranscript(transcript, "", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected thinking-only assistant turn to be preserved, got %d messages", len(msgs))
	}
	if len(msgs[0].Content) != 2 {
		t.Fatalf("expected thinking + terminal empty text blocks, got %d", len(msgs[0].Content))
	}
	if msgs[0].Content[0].OfThinking == nil {
		t.Fatalf("expected first block to be thinking")
	}
	if msgs[0].Content[1].OfText == nil || msgs[0].Content[1].OfText.Text != "" {
		t.Fatalf("expected second block to be terminal empty text")
	}
}

func TestSetAnthropicCacheControlOnLastContentBlock_SkipsEmptyTerminalText(t *testing.T) {
	t.Parallel()

	msg := anthropic.NewAssistantMessage(
		anthropic.NewTextBlock("answer"),
		anthropic.NewTextBlock(""),
	)
	setAnthropicCacheControlOnLastContentBlock(&msg)

	if string(msg.Content[1].OfText.CacheControl.Type) != "" {
		t.Fatalf("expected empty terminal text to have no cache control")
	}
	if string(msg.Content[0].OfText.CacheControl.Type) != "ephemeral" {
		t.Fatalf("expected previous non-empty text to receive cache control")
	}
}

func TestSetAnthropicCacheControlOnLastContentBlock_NoEligibleBlock(t *testing.T) {
	t.Parallel()

	msg := anthropic.NewAssistantMessage(
		anthropic.NewThinkingBlock("sig-123", "reasoning"),
		anthropic.NewTextBlock(""),
	)
	setAnthropicCacheControlOnLastContentBlock(&msg)

	if string(msg.Content[1].OfText.CacheControl.Type) != "" {
		t.Fatalf("expected empty terminal text to have no cache control")
	}
}

func TestAnthropicGenerator_EmbedContentUnsupported(t *testing.T) {
	t.Parallel()

	gen := newAnthropicGenerator(BackendConfig{Model: "claude-sonnet-4-5", APIKey: "k"}, HTTPOptions{}, nil)
	res, err := gen.EmbedContent(context.Background(), EmbedRequest{Inputs: []string{"hello"}})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
}

func TestAnthropicGenerator_GenerateContent(t *testing.T) {
	t.Parallel()

	var gotPath, gotAgent, gotKey, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("X-Api-Key")
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"model":"claude-haiku-4-5"`) {
			gotModel = "claude-haiku-4-5"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5",
			"content": [
				{"type": "text", "text": "hello there"},
				{"type": "tool_use", "id": "toolu_1", "name": "lookup", "input": {"q": "x"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 7, "output_tokens": 3}
		}`)
	}))
	defer server.Close()

	opts := HTTPOptions{Headers: http.Header{"User-Agent": []string{"contentgen/test (linux; amd64)"}}}
	gen := newAnthropicGenerator(BackendConfig{Model: "claude-haiku-4-5", APIKey: "k1", Endpoint: server.URL}, opts, nil)

	res, err := gen.GenerateContent(context.Background(), GenerateRequest{
		Messages: []Message{TextMessage(RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAgent != "contentgen/test (linux; amd64)" {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}
	if gotKey != "k1" {
		t.Fatalf("unexpected api key %q", gotKey)
	}
	if gotModel != "claude-haiku-4-5" {
		t.Fatalf("expected configured model in request body")
	}
	if res.Text != "hello there" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Name != "lookup" || res.ToolCalls[0].Arguments != `{"q":"x"}` {
		t.Fatalf("unexpected tool calls %+v", res.ToolCalls)
	}
	if res.StopReason != "tool_use" {
		t.Fatalf("unexpected stop reason %q", res.StopReason)
	}
	if res.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected usage %+v", res.Usage)
	}
}

func TestAnthropicGenerator_GenerateContentStream(t *testing.T) {
	t.Parallel()

	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5","content":[],"stop_reason":null,"usage":{"input_tokens":5,"output_tokens":0}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":5,"output_tokens":2}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.name, event.data)
		}
	}))
	defer server.Close()

	gen := newAnthropicGenerator(BackendConfig{Model: "claude-haiku-4-5", APIKey: "k1", Endpoint: server.URL}, HTTPOptions{}, nil)
	res, err := Collect("claude-haiku-4-5", gen.GenerateContentStream(context.Background(), GenerateRequest{
		Messages: []Message{TextMessage(RoleUser, "hi")},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Hello" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.StopReason != string(anthropic.StopReasonEndTurn) {
		t.Fatalf("unexpected stop reason %q", res.StopReason)
	}
	if res.Usage.OutputTokens != 2 || res.Usage.InputTokens != 5 {
		t.Fatalf("unexpected usage %+v", res.Usage)
	}
}
