package llm

import (
	"iter"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	ContentTypeText             = "text"
	ContentTypeImageURL         = "image_url"
	ContentTypeThinking         = "thinking"
	ContentTypeRedactedThinking = "redacted_thinking"
)

// ResponseFormat asks the backend for JSON output matching Schema.
type ResponseFormat struct {
	Name   string `json:"name"`
	Schema any    `json:"schema"`
	Strict bool   `json:"strict"`
}

// ResponseFormatFor derives a strict ResponseFormat from the JSON schema of T.
func ResponseFormatFor[T any](name string) (*ResponseFormat, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	return &ResponseFormat{
		Name:   name,
		Schema: schema,
		Strict: true,
	}, nil
}

type ContentPart struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageDetail string `json:"image_detail,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
	Data        string `json:"data,omitempty"`
}

type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      bool           `json:"strict,omitempty"`
}

type ToolCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Message struct {
	Role       string        `json:"role"`
	Content    []ContentPart `json:"content,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolName   string        `json:"tool_name,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

func ImageURLPart(url string, detail ...string) ContentPart {
	imageDetail := ""
	if len(detail) > 0 {
		imageDetail = detail[0]
	}
	return ContentPart{Type: ContentTypeImageURL, ImageURL: url, ImageDetail: imageDetail}
}

func ThinkingPart(signature, thinking string) ContentPart {
	return ContentPart{
		Type:      ContentTypeThinking,
		Thinking:  thinking,
		Signature: signature,
	}
}

func RedactedThinkingPart(data string) ContentPart {
	return ContentPart{
		Type: ContentTypeRedactedThinking,
		Data: data,
	}
}

func TextMessage(role string, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentPart{TextPart(text)},
	}
}

func ToolResultMessage(callID, name, output string) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: callID,
		ToolName:   name,
		Content:    []ContentPart{TextPart(output)},
	}
}

func (m Message) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, part := range m.Content {
		if part.Type == ContentTypeText {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "")
}

// GenerateRequest is the input of GenerateContent and GenerateContentStream.
// Model overrides the call name the generator was created with.
type GenerateRequest struct {
	Model        string           `json:"model,omitempty"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Temperature  *float64         `json:"temperature,omitempty"`
	MaxTokens    int64            `json:"max_tokens,omitempty"`
	Format       *ResponseFormat  `json:"format,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
}

// Clone deep-copies the message list so adapters never share caller state.
func (r GenerateRequest) Clone() GenerateRequest {
	clone := r
	if len(r.Messages) > 0 {
		clone.Messages = make([]Message, len(r.Messages))
		for i, msg := range r.Messages {
			clone.Messages[i] = cloneMessage(msg)
		}
	}
	if len(r.Tools) > 0 {
		clone.Tools = append([]ToolDefinition(nil), r.Tools...)
	}
	if r.Temperature != nil {
		t := *r.Temperature
		clone.Temperature = &t
	}
	return clone
}

func cloneMessage(msg Message) Message {
	clone := msg
	if len(msg.Content) > 0 {
		clone.Content = append([]ContentPart(nil), msg.Content...)
	}
	if len(msg.ToolCalls) > 0 {
		clone.ToolCalls = append([]ToolCall(nil), msg.ToolCalls...)
	}
	return clone
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ContentResult is one complete response.
type ContentResult struct {
	Model      string     `json:"model"`
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      Usage      `json:"usage"`
}

// ContentChunk is one partial result of a stream. Usage and StopReason are
// only set on the chunk that ends the response.
type ContentChunk struct {
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
}

type CountTokensRequest struct {
	Model        string           `json:"model,omitempty"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
}

type TokenCount struct {
	TotalTokens int64 `json:"total_tokens"`
}

// EmbedRequest asks for one embedding per input.
type EmbedRequest struct {
	Model      string   `json:"model,omitempty"`
	Inputs     []string `json:"inputs"`
	Dimensions int64    `json:"dimensions,omitempty"`
}

type Embedding struct {
	Values []float32 `json:"values"`
}

type EmbeddingResult struct {
	Model      string      `json:"model"`
	Embeddings []Embedding `json:"embeddings"`
}

// Collect drains a stream into a single ContentResult.
func Collect(model string, chunks iter.Seq2[*ContentChunk, error]) (*ContentResult, error) {
	result := &ContentResult{Model: model}
	var text strings.Builder
	for chunk, err := range chunks {
		if err != nil {
			return nil, err
		}
		text.WriteString(chunk.Text)
		result.ToolCalls = append(result.ToolCalls, chunk.ToolCalls...)
		if chunk.StopReason != "" {
			result.StopReason = chunk.StopReason
		}
		if chunk.Usage != nil {
			result.Usage = *chunk.Usage
		}
	}
	result.Text = text.String()
	return result, nil
}
