package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// genAIContents converts canonical messages to genai contents. System
// messages and instructions are merged into one system instruction.
func genAIContents(messages []Message, instructions string) (*genai.Content, []*genai.Content, error) {
	var systemParts []*genai.Part
	if text := strings.TrimSpace(instructions); text != "" {
		systemParts = append(systemParts, &genai.Part{Text: text})
	}

	toolNames := make(map[string]string)
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := strings.TrimSpace(msg.Text()); text != "" {
				systemParts = append(systemParts, &genai.Part{Text: text})
			}
		case RoleUser, RoleAssistant:
			parts, err := genAIPartsFromContent(msg.Content)
			if err != nil {
				return nil, nil, err
			}
			role := string(genai.RoleUser)
			if msg.Role == RoleAssistant {
				role = string(genai.RoleModel)
			}
			for _, call := range msg.ToolCalls {
				args, err := genAIArgs(call)
				if err != nil {
					return nil, nil, err
				}
				toolNames[call.CallID] = call.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: call.CallID, Name: call.Name, Args: args}})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		case RoleTool:
			name := msg.ToolName
			if name == "" {
				name = toolNames[msg.ToolCallID]
			}
			if name == "" {
				return nil, nil, fmt.Errorf("genai tool result %q has no tool name", msg.ToolCallID)
			}
			contents = append(contents, &genai.Content{
				Role: string(genai.RoleUser),
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     name,
						Response: genAIToolOutput(msg.Text()),
					},
				}},
			})
		default:
			return nil, nil, fmt.Errorf("unsupported genai message role %q", msg.Role)
		}
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return system, contents, nil
}

func genAIPartsFromContent(content []ContentPart) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(content))
	for _, part := range content {
		switch part.Type {
		case ContentTypeText:
			parts = append(parts, &genai.Part{Text: part.Text})
		case ContentTypeThinking, ContentTypeRedactedThinking:
			// Thought signatures from other providers are not portable.
		default:
			return nil, fmt.Errorf("unsupported genai content type %q", part.Type)
		}
	}
	return parts, nil
}

func genAIArgs(call ToolCall) (map[string]any, error) {
	if strings.TrimSpace(call.Arguments) == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool call arguments for %s: %w", call.Name, err)
	}
	return args, nil
}

func genAIToolOutput(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": text}
}

func genAITools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if len(tool.Parameters) > 0 {
			decl.ParametersJsonSchema = tool.Parameters
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func genAIGenerateConfig(req GenerateRequest, system *genai.Content) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             genAITools(req.Tools),
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Format != nil {
		schema, err := toSchemaMap(req.Format.Schema)
		if err != nil {
			return nil, err
		}
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = schema
	}
	return config, nil
}

func genAIResult(model string, resp *genai.GenerateContentResponse) (*ContentResult, error) {
	chunk, err := genAIChunk(resp)
	if err != nil {
		return nil, err
	}
	result := &ContentResult{
		Model:      model,
		Text:       chunk.Text,
		ToolCalls:  chunk.ToolCalls,
		StopReason: chunk.StopReason,
	}
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}
	if chunk.Usage != nil {
		result.Usage = *chunk.Usage
	}
	return result, nil
}

// genAIChunk flattens the first candidate of resp. Thought parts are dropped.
func genAIChunk(resp *genai.GenerateContentResponse) (*ContentChunk, error) {
	chunk := &ContentChunk{}
	if resp == nil {
		return chunk, nil
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		candidate := resp.Candidates[0]
		chunk.StopReason = string(candidate.FinishReason)
		if candidate.Content != nil {
			var text strings.Builder
			for _, part := range candidate.Content.Parts {
				if part == nil || part.Thought {
					continue
				}
				text.WriteString(part.Text)
				if part.FunctionCall != nil {
					call, err := genAIToolCall(part.FunctionCall)
					if err != nil {
						return nil, err
					}
					chunk.ToolCalls = append(chunk.ToolCalls, call)
				}
			}
			chunk.Text = text.String()
		}
	}
	if usage := resp.UsageMetadata; usage != nil && chunk.StopReason != "" {
		chunk.Usage = &Usage{
			InputTokens:  int64(usage.PromptTokenCount),
			OutputTokens: int64(usage.CandidatesTokenCount),
			TotalTokens:  int64(usage.TotalTokenCount),
		}
	}
	return chunk, nil
}

func genAIToolCall(fc *genai.FunctionCall) (ToolCall, error) {
	args := "{}"
	if len(fc.Args) > 0 {
		b, err := json.Marshal(fc.Args)
		if err != nil {
			return ToolCall{}, err
		}
		args = string(b)
	}
	// Calls without a server id get a unique one so parallel calls to the
	// same function keep distinct results.
	callID := fc.ID
	if callID == "" {
		callID = fc.Name + "-" + uuid.NewString()
	}
	return ToolCall{CallID: callID, Name: fc.Name, Arguments: args}, nil
}

// genAICountContents folds the system instruction into the contents since
// the Gemini API rejects it on countTokens.
func genAICountContents(system *genai.Content, contents []*genai.Content) []*genai.Content {
	if system == nil {
		return contents
	}
	folded := make([]*genai.Content, 0, len(contents)+1)
	folded = append(folded, &genai.Content{Role: string(genai.RoleUser), Parts: system.Parts})
	return append(folded, contents...)
}
