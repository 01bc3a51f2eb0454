package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const anthropicDefaultMaxTokens int64 = 16384

// anthropicGenerator serves the anthropic family through the Messages API.
// Anthropic has no embeddings endpoint.
type anthropicGenerator struct {
	model  string
	client anthropic.Client
}

var _ ContentGenerator = (*anthropicGenerator)(nil)

func newAnthropicGenerator(cfg BackendConfig, opts HTTPOptions, httpClient *http.Client) *anthropicGenerator {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.Endpoint))
	}
	if httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(httpClient))
	}
	for key, values := range opts.Headers {
		reqOpts = append(reqOpts, option.WithHeader(key, strings.Join(values, ", ")))
	}
	return &anthropicGenerator{
		model:  cfg.Model,
		client: anthropic.NewClient(reqOpts...),
	}
}

func (g *anthropicGenerator) GenerateContent(ctx context.Context, req GenerateRequest) (*ContentResult, error) {
	params, err := g.messageParams(req)
	if err != nil {
		return nil, err
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate content: %w", err)
	}
	if message == nil {
		return nil, fmt.Errorf("anthropic returned nil message")
	}
	return anthropicResult(message)
}

func (g *anthropicGenerator) GenerateContentStream(ctx context.Context, req GenerateRequest) iter.Seq2[*ContentChunk, error] {
	params, err := g.messageParams(req)
	if err != nil {
		return errorSeq(err)
	}

	return func(yield func(*ContentChunk, error) bool) {
		var message anthropic.Message
		chunks := streamChunks(
			string(FamilyAnthropic),
			func() eventStream[anthropic.MessageStreamEventUnion] {
				return g.client.Messages.NewStreaming(ctx, params)
			},
			func(event anthropic.MessageStreamEventUnion) (*ContentChunk, error) {
				if err := message.Accumulate(event); err != nil {
					return nil, fmt.Errorf("anthropic accumulate stream: %w", err)
				}
				return anthropicChunkFromEvent(event, &message)
			},
		)
		chunks(yield)
	}
}

func (g *anthropicGenerator) CountTokens(ctx context.Context, req CountTokensRequest) (*TokenCount, error) {
	messages, systemBlocks, err := anthropicMessagesFromTranscript(req.Messages, req.Instructions, 0)
	if err != nil {
		return nil, err
	}
	params := anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(callModel(g.model, req.Model)),
		Messages: messages,
	}
	if len(systemBlocks) > 0 {
		params.System = anthropic.MessageCountTokensParamsSystemUnion{OfTextBlockArray: systemBlocks}
	}
	for _, tool := range anthropicToolsFromCanonical(req.Tools) {
		params.Tools = append(params.Tools, anthropic.MessageCountTokensToolUnionParam{OfTool: tool.OfTool})
	}

	count, err := g.client.Messages.CountTokens(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic count tokens: %w", err)
	}
	return &TokenCount{TotalTokens: count.InputTokens}, nil
}

func (g *anthropicGenerator) EmbedContent(context.Context, EmbedRequest) (*EmbeddingResult, error) {
	return nil, unsupportedOperation(string(FamilyAnthropic), "embeddings")
}

func (g *anthropicGenerator) messageParams(req GenerateRequest) (anthropic.MessageNewParams, error) {
	model := callModel(g.model, req.Model)
	stablePrefixCount := len(req.Messages) - 1
	if stablePrefixCount < 0 {
		stablePrefixCount = 0
	}
	messages, systemBlocks, err := anthropicMessagesFromTranscript(req.Messages, req.Instructions, stablePrefixCount)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens(req.MaxTokens),
		Messages:  messages,
		System:    systemBlocks,
		Tools:     anthropicToolsFromCanonical(req.Tools),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if thinking, ok := anthropicThinkingConfig(model); ok {
		params.Thinking = thinking
	}
	if req.Format != nil {
		schema, err := toSchemaMap(req.Format.Schema)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.OutputConfig = anthropic.OutputConfigParam{
			Format: anthropic.JSONOutputFormatParam{
				Schema: schema,
			},
		}
	}
	return params, nil
}

func anthropicMaxTokens(requested int64) int64 {
	if requested > 0 {
		return requested
	}
	return anthropicDefaultMaxTokens
}

func anthropicResult(message *anthropic.Message) (*ContentResult, error) {
	var output strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			output.WriteString(text.Text)
		}
	}
	toolCalls, err := anthropicToolCalls(message)
	if err != nil {
		return nil, err
	}
	return &ContentResult{
		Model:      string(message.Model),
		Text:       output.String(),
		ToolCalls:  toolCalls,
		StopReason: string(message.StopReason),
		Usage:      anthropicUsage(message),
	}, nil
}

func anthropicToolCalls(message *anthropic.Message) ([]ToolCall, error) {
	var toolCalls []ToolCall
	for _, block := range message.Content {
		variant, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		b, err := json.Marshal(variant.Input)
		if err != nil {
			return nil, err
		}
		toolCalls = append(toolCalls, ToolCall{CallID: variant.ID, Name: variant.Name, Arguments: string(b)})
	}
	return toolCalls, nil
}

func anthropicUsage(message *anthropic.Message) Usage {
	input := message.Usage.InputTokens + message.Usage.CacheReadInputTokens + message.Usage.CacheCreationInputTokens
	return Usage{
		InputTokens:  input,
		OutputTokens: message.Usage.OutputTokens,
		TotalTokens:  input + message.Usage.OutputTokens,
	}
}

// anthropicChunkFromEvent emits text deltas as they arrive and one final
// chunk with tool calls and usage once the message stops.
func anthropicChunkFromEvent(event anthropic.MessageStreamEventUnion, message *anthropic.Message) (*ContentChunk, error) {
	switch variant := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
			return &ContentChunk{Text: delta.Text}, nil
		}
	case anthropic.MessageStopEvent:
		toolCalls, err := anthropicToolCalls(message)
		if err != nil {
			return nil, err
		}
		usage := anthropicUsage(message)
		return &ContentChunk{
			ToolCalls:  toolCalls,
			StopReason: string(message.StopReason),
			Usage:      &usage,
		}, nil
	}
	return nil, nil
}

func anthropicThinkingConfig(model string) (anthropic.ThinkingConfigParamUnion, bool) {
	if !anthropicSupportsAdaptiveThinking(model) {
		return anthropic.ThinkingConfigParamUnion{}, false
	}

	adaptive := anthropic.NewThinkingConfigAdaptiveParam()
	return anthropic.ThinkingConfigParamUnion{OfAdaptive: &adaptive}, true
}

func anthropicSupportsAdaptiveThinking(model string) bool {
	model = strings.ToLower(strings.TrimSpace(model))
	return strings.Contains(model, "opus-4-6") || strings.Contains(model, "sonnet-4-6")
}

func anthropicMessagesFromTranscript(
	transcript []Message,
	instructions string,
	stablePrefixCount int,
) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	messages := make([]anthropic.MessageParam, 0, len(transcript))
	systemBlocks := make([]anthropic.TextBlockParam, 0)
	lastStableMessageIdx := -1

	instructions = strings.TrimSpace(instructions)
	if instructions != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: instructions})
	}

	for idx, msg := range transcript {
		switch msg.Role {
		case RoleSystem:
			text := strings.TrimSpace(msg.Text())
			if text != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: text})
			}
		case RoleUser:
			blocks, err := anthropicContentBlocksFromParts(msg.Content)
			if err != nil {
				return nil, nil, err
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
			if idx < stablePrefixCount {
				lastStableMessageIdx = len(messages) - 1
			}
		case RoleAssistant:
			blocks, err := anthropicContentBlocksFromParts(msg.Content)
			if err != nil {
				return nil, nil, err
			}
			for _, toolCall := range msg.ToolCalls {
				var args map[string]any
				if strings.TrimSpace(toolCall.Arguments) != "" {
					if err = json.Unmarshal([]byte(toolCall.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("failed to unmarshal tool call arguments for %s: %w", toolCall.Name, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(toolCall.CallID, args, toolCall.Name))
			}
			blocks = ensureAnthropicAssistantMessageEnding(blocks)
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			if idx < stablePrefixCount {
				lastStableMessageIdx = len(messages) - 1
			}
		case RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false),
			))
			if idx < stablePrefixCount {
				lastStableMessageIdx = len(messages) - 1
			}
		default:
			return nil, nil, fmt.Errorf("unsupported anthropic message role %q", msg.Role)
		}
	}
	if len(systemBlocks) > 0 {
		// Cache the stable system-prefix for repeated tool loops.
		systemBlocks[len(systemBlocks)-1].CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	if lastStableMessageIdx >= 0 {
		setAnthropicCacheControlOnLastContentBlock(&messages[lastStableMessageIdx])
	}

	return messages, systemBlocks, nil
}

func anthropicContentBlocksFromParts(parts []ContentPart) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case ContentTypeText:
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case ContentTypeImageURL:
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: part.ImageURL}))
		case ContentTypeThinking:
			if strings.TrimSpace(part.Signature) == "" {
				return nil, fmt.Errorf("anthropic thinking content block missing signature")
			}
			blocks = append(blocks, anthropic.NewThinkingBlock(part.Signature, part.Thinking))
		case ContentTypeRedactedThinking:
			if strings.TrimSpace(part.Data) == "" {
				return nil, fmt.Errorf("anthropic redacted thinking content block missing data")
			}
			blocks = append(blocks, anthropic.NewRedactedThinkingBlock(part.Data))
		default:
			return nil, fmt.Errorf("unsupported anthropic content type %q", part.Type)
		}
	}
	return blocks, nil
}

func ensureAnthropicAssistantMessageEnding(blocks []anthropic.ContentBlockParamUnion) []anthropic.ContentBlockParamUnion {
	if len(blocks) == 0 {
		return blocks
	}
	last := blocks[len(blocks)-1]
	if last.OfThinking == nil && last.OfRedactedThinking == nil {
		return blocks
	}
	// Anthropic rejects assistant messages that end with thinking blocks.
	return append(blocks, anthropic.NewTextBlock(""))
}

func anthropicToolsFromCanonical(tools []ToolDefinition) []anthropic.ToolUnionParam {
	ret := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropicToolSchema(tool.Parameters)
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			InputSchema: schema,
		}
		if tool.Description != "" {
			toolParam.Description = anthropic.String(tool.Description)
		}
		if tool.Strict {
			toolParam.Strict = anthropic.Bool(true)
		}
		ret = append(ret, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	if len(ret) > 0 && ret[len(ret)-1].OfTool != nil {
		// Cache the full tool list by marking the final tool definition.
		ret[len(ret)-1].OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	return ret
}

func setAnthropicCacheControlOnLastContentBlock(msg *anthropic.MessageParam) {
	if msg == nil || len(msg.Content) == 0 {
		return
	}
	cacheControl := anthropic.NewCacheControlEphemeralParam()
	for i := len(msg.Content) - 1; i >= 0; i-- {
		block := &msg.Content[i]
		switch {
		case block.OfText != nil:
			if block.OfText.Text == "" {
				continue
			}
			block.OfText.CacheControl = cacheControl
			return
		case block.OfImage != nil:
			block.OfImage.CacheControl = cacheControl
			return
		case block.OfDocument != nil:
			block.OfDocument.CacheControl = cacheControl
			return
		case block.OfToolResult != nil:
			block.OfToolResult.CacheControl = cacheControl
			return
		case block.OfToolUse != nil:
			block.OfToolUse.CacheControl = cacheControl
			return
		}
	}
}

func anthropicToolSchema(parameters map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}
	if len(parameters) == 0 {
		return schema
	}
	schema.Properties = parameters["properties"]
	schema.Required = toRequiredStrings(parameters["required"])
	extra := make(map[string]any)
	for key, value := range parameters {
		if key == "type" || key == "properties" || key == "required" {
			continue
		}
		extra[key] = value
	}
	if len(extra) > 0 {
		schema.ExtraFields = extra
	}
	return schema
}

func toRequiredStrings(value any) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		ret := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				ret = append(ret, s)
			}
		}
		return ret
	default:
		return nil
	}
}
