package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/genai"
)

const (
	defaultCodeAssistEndpoint = "https://cloudcode-pa.googleapis.com"
	codeAssistAPIVersion      = "v1internal"

	codeAssistMaxErrorBody = 64 << 10
	codeAssistMaxEventSize = 10 << 20
)

// CodeAssistError is a non-2xx reply from the code assist server.
type CodeAssistError struct {
	StatusCode int
	Body       string
}

func (e *CodeAssistError) Error() string {
	return fmt.Sprintf("code assist returned status %d: %s", e.StatusCode, e.Body)
}

type codeAssistOptions struct {
	model      string
	endpoint   string
	project    string
	mode       AuthMode
	headers    http.Header
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

// codeAssistClient talks to the code assist proxy, which manages its own
// session and authorizes with the caller's OAuth login.
type codeAssistClient struct {
	model    string
	endpoint string
	project  string
	mode     AuthMode
	headers  http.Header
	client   *http.Client
}

var _ ContentGenerator = (*codeAssistClient)(nil)

func newCodeAssistClient(ctx context.Context, opts codeAssistOptions) *codeAssistClient {
	if opts.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.httpClient)
	}
	return &codeAssistClient{
		model:    opts.model,
		endpoint: strings.TrimRight(opts.endpoint, "/"),
		project:  opts.project,
		mode:     opts.mode,
		headers:  opts.headers,
		client:   oauth2.NewClient(ctx, opts.tokens),
	}
}

type codeAssistRequest struct {
	Model        string                    `json:"model"`
	Project      string                    `json:"project,omitempty"`
	UserPromptID string                    `json:"user_prompt_id,omitempty"`
	Request      codeAssistGenerateRequest `json:"request"`
}

type codeAssistGenerateRequest struct {
	Contents          []*genai.Content            `json:"contents"`
	SystemInstruction *genai.Content              `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool               `json:"tools,omitempty"`
	GenerationConfig  *codeAssistGenerationConfig `json:"generationConfig,omitempty"`
}

type codeAssistGenerationConfig struct {
	Temperature        *float32 `json:"temperature,omitempty"`
	MaxOutputTokens    int32    `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType   string   `json:"responseMimeType,omitempty"`
	ResponseJSONSchema any      `json:"responseJsonSchema,omitempty"`
}

type codeAssistResponse struct {
	Response *genai.GenerateContentResponse `json:"response"`
}

type codeAssistCountRequest struct {
	Request codeAssistCountBody `json:"request"`
}

type codeAssistCountBody struct {
	Model    string           `json:"model"`
	Contents []*genai.Content `json:"contents"`
}

type codeAssistCountResponse struct {
	TotalTokens int64 `json:"totalTokens"`
}

func (c *codeAssistClient) GenerateContent(ctx context.Context, req GenerateRequest) (*ContentResult, error) {
	model := callModel(c.model, req.Model)
	payload, err := c.generatePayload(model, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "generateContent", nil, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded codeAssistResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode code assist response: %w", err)
	}
	return genAIResult(model, decoded.Response)
}

func (c *codeAssistClient) GenerateContentStream(ctx context.Context, req GenerateRequest) iter.Seq2[*ContentChunk, error] {
	model := callModel(c.model, req.Model)
	payload, err := c.generatePayload(model, req)
	if err != nil {
		return errorSeq(err)
	}

	return func(yield func(*ContentChunk, error) bool) {
		body := *payload
		body.UserPromptID = uuid.NewString()
		resp, err := c.post(ctx, "streamGenerateContent", url.Values{"alt": []string{"sse"}}, &body)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), codeAssistMaxEventSize)
		var data []string
		emit := func() bool {
			if len(data) == 0 {
				return true
			}
			raw := strings.Join(data, "\n")
			data = data[:0]

			var decoded codeAssistResponse
			if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
				yield(nil, fmt.Errorf("failed to decode code assist stream event: %w", err))
				return false
			}
			chunk, err := genAIChunk(decoded.Response)
			if err != nil {
				yield(nil, err)
				return false
			}
			return yield(chunk, nil)
		}

		for scanner.Scan() {
			line := scanner.Text()
			if value, ok := strings.CutPrefix(line, "data:"); ok {
				data = append(data, strings.TrimSpace(value))
				continue
			}
			if line == "" && !emit() {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read code assist stream: %w", err))
			return
		}
		emit()
	}
}

func (c *codeAssistClient) CountTokens(ctx context.Context, req CountTokensRequest) (*TokenCount, error) {
	system, contents, err := genAIContents(req.Messages, req.Instructions)
	if err != nil {
		return nil, err
	}
	model := callModel(c.model, req.Model)
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	resp, err := c.post(ctx, "countTokens", nil, codeAssistCountRequest{
		Request: codeAssistCountBody{Model: model, Contents: genAICountContents(system, contents)},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded codeAssistCountResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode code assist token count: %w", err)
	}
	return &TokenCount{TotalTokens: decoded.TotalTokens}, nil
}

func (c *codeAssistClient) EmbedContent(context.Context, EmbedRequest) (*EmbeddingResult, error) {
	return nil, unsupportedOperation(string(c.mode), "embeddings")
}

func (c *codeAssistClient) generatePayload(model string, req GenerateRequest) (*codeAssistRequest, error) {
	system, contents, err := genAIContents(req.Messages, req.Instructions)
	if err != nil {
		return nil, err
	}

	payload := &codeAssistRequest{
		Model:        model,
		Project:      c.project,
		UserPromptID: uuid.NewString(),
		Request: codeAssistGenerateRequest{
			Contents:          contents,
			SystemInstruction: system,
			Tools:             genAITools(req.Tools),
		},
	}

	config := &codeAssistGenerationConfig{}
	set := req.Temperature != nil || req.MaxTokens > 0 || req.Format != nil
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
		config.ResponseJSONSchema = schema
	}
	if set {
		payload.Request.GenerationConfig = config
	}
	return payload, nil
}

func (c *codeAssistClient) post(ctx context.Context, method string, query url.Values, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode code assist %s request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/%s:%s", c.endpoint, codeAssistAPIVersion, method)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("code assist %s: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, codeAssistMaxErrorBody))
		return nil, &CodeAssistError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}
