package llm

import (
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"go.temporal.io/sdk/temporal"
	"google.golang.org/genai"
)

const (
	ConfigErrorType                  = "ContentGenConfigError"
	OpenAIInvalidRequestErrorType    = "OpenAIInvalidRequestError"
	AnthropicInvalidRequestErrorType = "AnthropicInvalidRequestError"
	GenAIInvalidRequestErrorType     = "GenAIInvalidRequestError"
	CodeAssistInvalidRequestType     = "CodeAssistInvalidRequestError"
)

// NonRetryableErrorTypes lists the application error types produced by
// ClassifyProviderError that retrying cannot fix.
func NonRetryableErrorTypes() []string {
	return []string{
		ConfigErrorType,
		OpenAIInvalidRequestErrorType,
		AnthropicInvalidRequestErrorType,
		GenAIInvalidRequestErrorType,
		CodeAssistInvalidRequestType,
	}
}

// ClassifyProviderError marks configuration errors and provider 400s as
// non-retryable Temporal application errors. Other errors pass through.
func ClassifyProviderError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return err
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return temporal.NewNonRetryableApplicationError(cfgErr.Error(), ConfigErrorType, err)
	}

	var openAIErr *openai.Error
	if errors.As(err, &openAIErr) {
		return ClassifyOpenAIError(err)
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return ClassifyAnthropicError(err)
	}

	if classified, ok := classifyGenAIError(err); ok {
		return classified
	}

	var codeAssistErr *CodeAssistError
	if errors.As(err, &codeAssistErr) && codeAssistErr.StatusCode == 400 {
		return temporal.NewNonRetryableApplicationError(
			"code assist invalid request: "+codeAssistErr.Body,
			CodeAssistInvalidRequestType,
			err,
		)
	}

	return err
}

func ClassifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 400 {
		if isRetryableURLDownloadTimeout(apiErr) {
			return err
		}

		msg := "openai invalid request"
		if apiErr.Param != "" {
			msg += " (param: " + apiErr.Param + ")"
		}
		if apiErr.Message != "" {
			msg += ": " + apiErr.Message
		}
		return temporal.NewNonRetryableApplicationError(msg, OpenAIInvalidRequestErrorType, err)
	}
	return err
}

func isRetryableURLDownloadTimeout(apiErr *openai.Error) bool {
	if apiErr == nil || apiErr.Param != "url" {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "timeout while downloading")
}

func ClassifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 400 {
		msg := "anthropic invalid request"
		if apiErr.RequestID != "" {
			msg += " (request_id: " + apiErr.RequestID + ")"
		}
		if raw := strings.TrimSpace(apiErr.RawJSON()); raw != "" {
			msg += ": " + raw
		}
		return temporal.NewNonRetryableApplicationError(
			msg,
			AnthropicInvalidRequestErrorType,
			err,
		)
	}
	return err
}

// classifyGenAIError handles genai errors, which the SDK returns by value.
func classifyGenAIError(err error) (error, bool) {
	var code int
	var status, message string

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, status, message = apiErr.Code, apiErr.Status, apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code, status, message = apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message
	default:
		return nil, false
	}

	if code != 400 {
		return err, true
	}
	msg := "genai invalid request"
	if status != "" {
		msg += fmt.Sprintf(" (%s)", status)
	}
	if message != "" {
		msg += ": " + message
	}
	return temporal.NewNonRetryableApplicationError(msg, GenAIInvalidRequestErrorType, err), true
}
