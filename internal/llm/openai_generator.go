package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
)

// openAIGenerator serves the openai family through the Responses and
// Embeddings APIs. It also covers OpenAI compatible endpoints.
type openAIGenerator struct {
	model  string
	client openai.Client
}

var _ ContentGenerator = (*openAIGenerator)(nil)

func newOpenAIGenerator(cfg BackendConfig, opts HTTPOptions, httpClient *http.Client) *openAIGenerator {
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
	return &openAIGenerator{
		model:  cfg.Model,
		client: openai.NewClient(reqOpts...),
	}
}

func (g *openAIGenerator) GenerateContent(ctx context.Context, req GenerateRequest) (*ContentResult, error) {
	params, err := g.responseParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai generate content: %w", err)
	}
	return openAIResult(resp), nil
}

func (g *openAIGenerator) GenerateContentStream(ctx context.Context, req GenerateRequest) iter.Seq2[*ContentChunk, error] {
	params, err := g.responseParams(req)
	if err != nil {
		return errorSeq(err)
	}

	return streamChunks(
		string(FamilyOpenAI),
		func() eventStream[responses.ResponseStreamEventUnion] {
			return g.client.Responses.NewStreaming(ctx, params)
		},
		openAIChunkFromEvent,
	)
}

func (g *openAIGenerator) CountTokens(ctx context.Context, req CountTokensRequest) (*TokenCount, error) {
	input, err := openAIInputFromMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := responses.InputTokenCountParams{
		Model: openai.String(callModel(g.model, req.Model)),
		Input: responses.InputTokenCountParamsInputUnion{OfResponseInputItemArray: input},
		Tools: openAIToolsFromCanonical(req.Tools),
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}

	count, err := g.client.Responses.InputTokens.Count(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai count tokens: %w", err)
	}
	return &TokenCount{TotalTokens: count.InputTokens}, nil
}

func (g *openAIGenerator) EmbedContent(ctx context.Context, req EmbedRequest) (*EmbeddingResult, error) {
	if err := validateEmbedRequest(req); err != nil {
		return nil, err
	}
	model := callModel(g.model, req.Model)
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Inputs},
	}
	if req.Dimensions > 0 {
		params.Dimensions = openai.Int(req.Dimensions)
	}

	resp, err := g.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embed content: %w", err)
	}

	if len(resp.Data) != len(req.Inputs) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(req.Inputs))
	}

	embeddings := make([]Embedding, len(req.Inputs))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(embeddings) {
			return nil, fmt.Errorf("openai embedding index %d out of range", item.Index)
		}
		if embeddings[item.Index].Values != nil {
			return nil, fmt.Errorf("openai returned duplicate embedding index %d", item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("openai returned an empty embedding at index %d", item.Index)
		}
		values := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			values[i] = float32(v)
		}
		embeddings[item.Index] = Embedding{Values: values}
	}
	if resp.Model != "" {
		model = resp.Model
	}
	return &EmbeddingResult{Model: model, Embeddings: embeddings}, nil
}

func (g *openAIGenerator) responseParams(req GenerateRequest) (responses.ResponseNewParams, error) {
	input, err := openAIInputFromMessages(req.Messages)
	if err != nil {
		return responses.ResponseNewParams{}, err
	}
	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
		Model: callModel(g.model, req.Model),
		Tools: openAIToolsFromCanonical(req.Tools),
		Store: openai.Bool(false),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(req.MaxTokens)
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.Format != nil {
		schemaMap, err := toSchemaMap(req.Format.Schema)
		if err != nil {
			return responses.ResponseNewParams{}, err
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   req.Format.Name,
					Schema: schemaMap,
					Strict: openai.Bool(req.Format.Strict),
				},
			},
		}
	}
	return params, nil
}

func openAIResult(resp *responses.Response) *ContentResult {
	return &ContentResult{
		Model:      resp.Model,
		Text:       resp.OutputText(),
		ToolCalls:  openAIToolCalls(resp),
		StopReason: string(resp.Status),
		Usage:      openAIUsage(resp),
	}
}

func openAIToolCalls(resp *responses.Response) []ToolCall {
	var toolCalls []ToolCall
	for _, item := range resp.Output {
		if item.Type == "function_call" {
			toolCalls = append(toolCalls, ToolCall{CallID: item.CallID, Name: item.Name, Arguments: item.Arguments})
		}
	}
	return toolCalls
}

func openAIUsage(resp *responses.Response) Usage {
	return Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
}

func openAIChunkFromEvent(event responses.ResponseStreamEventUnion) (*ContentChunk, error) {
	switch event.Type {
	case "response.output_text.delta":
		delta := event.AsResponseOutputTextDelta()
		if delta.Delta == "" {
			return nil, nil
		}
		return &ContentChunk{Text: delta.Delta}, nil
	case "response.completed":
		resp := event.AsResponseCompleted().Response
		usage := openAIUsage(&resp)
		return &ContentChunk{
			ToolCalls:  openAIToolCalls(&resp),
			StopReason: string(resp.Status),
			Usage:      &usage,
		}, nil
	case "response.incomplete":
		resp := event.AsResponseIncomplete().Response
		usage := openAIUsage(&resp)
		return &ContentChunk{
			ToolCalls:  openAIToolCalls(&resp),
			StopReason: string(resp.Status),
			Usage:      &usage,
		}, nil
	case "response.failed":
		resp := event.AsResponseFailed().Response
		return nil, fmt.Errorf("openai response failed: %s", resp.Error.Message)
	case "error":
		errEvent := event.AsError()
		return nil, fmt.Errorf("openai stream error %s: %s", errEvent.Code, errEvent.Message)
	default:
		return nil, nil
	}
}

func openAIInputFromMessages(messages []Message) (responses.ResponseInputParam, error) {
	input := make(responses.ResponseInputParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			content, err := openAIContentFromParts(msg.Content)
			if err != nil {
				return nil, err
			}
			if len(content) > 0 || len(msg.ToolCalls) == 0 {
				if len(content) == 0 {
					content = append(content, responses.ResponseInputContentParamOfInputText(""))
				}
				var role responses.EasyInputMessageRole
				switch msg.Role {
				case RoleSystem:
					role = responses.EasyInputMessageRoleSystem
				case RoleAssistant:
					role = responses.EasyInputMessageRoleAssistant
				default:
					role = responses.EasyInputMessageRoleUser
				}
				item := responses.ResponseInputItemParamOfMessage(content, role)
				if item.OfMessage != nil {
					item.OfMessage.Type = responses.EasyInputMessageTypeMessage
				}
				input = append(input, item)
			}
			for _, call := range msg.ToolCalls {
				input = append(input, responses.ResponseInputItemParamOfFunctionCall(call.Arguments, call.CallID, call.Name))
			}
		case RoleTool:
			input = append(input, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: msg.ToolCallID,
					Output: responses.ResponseInputItemFunctionCallOutputOutputUnionParam{OfString: openai.String(msg.Text())},
				},
			})
		default:
			return nil, fmt.Errorf("unsupported openai message role %q", msg.Role)
		}
	}
	return input, nil
}

func openAIContentFromParts(parts []ContentPart) (responses.ResponseInputMessageContentListParam, error) {
	ret := make(responses.ResponseInputMessageContentListParam, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case ContentTypeText:
			ret = append(ret, responses.ResponseInputContentParamOfInputText(part.Text))
		case ContentTypeImageURL:
			detail := responses.ResponseInputImageDetailHigh
			switch strings.ToLower(strings.TrimSpace(part.ImageDetail)) {
			case "low":
				detail = responses.ResponseInputImageDetailLow
			case "auto":
				detail = responses.ResponseInputImageDetailAuto
			}
			image := responses.ResponseInputContentParamOfInputImage(detail)
			image.OfInputImage.ImageURL = param.NewOpt(part.ImageURL)
			ret = append(ret, image)
		case ContentTypeThinking, ContentTypeRedactedThinking:
			// Reasoning from other providers cannot be replayed here.
		default:
			return nil, fmt.Errorf("unsupported openai content type %q", part.Type)
		}
	}
	return ret, nil
}

func openAIToolsFromCanonical(tools []ToolDefinition) []responses.ToolUnionParam {
	ret := make([]responses.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		fn := responses.FunctionToolParam{
			Name:       tool.Name,
			Parameters: tool.Parameters,
			Strict:     openai.Bool(tool.Strict),
		}
		if tool.Description != "" {
			fn.Description = openai.String(tool.Description)
		}
		ret = append(ret, responses.ToolUnionParam{OfFunction: &fn})
	}
	return ret
}

func toSchemaMap(schema any) (map[string]any, error) {
	if m, ok := schema.(map[string]any); ok {
		return m, nil
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err = json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func validateEmbedRequest(req EmbedRequest) error {
	if len(req.Inputs) == 0 {
		return fmt.Errorf("embed request has no inputs")
	}
	return nil
}
