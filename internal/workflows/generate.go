package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ansg191/contentgen/internal/activities"
	"github.com/ansg191/contentgen/internal/config"
	"github.com/ansg191/contentgen/internal/llm"
)

// GenerateWorkflowRequest runs a prompt through a named profile. Model and
// AuthMode override the profile when set.
type GenerateWorkflowRequest struct {
	Profile  string        `json:"profile"`
	Prompt   string        `json:"prompt"`
	Messages []llm.Message `json:"messages,omitempty"`
	Model    string        `json:"model,omitempty"`
	AuthMode string        `json:"auth_mode,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

// generateActivities is only used for method references.
var generateActivities *activities.Activities

func withGenerateActivityOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: llm.NonRetryableErrorTypes(),
		},
	})
}

func GenerateWorkflow(ctx workflow.Context, req GenerateWorkflowRequest) (*llm.ContentResult, error) {
	logger := workflow.GetLogger(ctx)

	if strings.TrimSpace(req.Prompt) == "" && len(req.Messages) == 0 {
		return nil, temporal.NewNonRetryableApplicationError("prompt is empty", llm.ConfigErrorType, nil)
	}

	profileCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
	})
	var profile config.Profile
	if req.Profile != "" {
		err := workflow.ExecuteActivity(profileCtx, activities.GetProfile, req.Profile).Get(ctx, &profile)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %q: %w", req.Profile, err)
		}
	}

	target, err := resolveTarget(profile, req)
	if err != nil {
		return nil, err
	}

	messages := append([]llm.Message(nil), req.Messages...)
	if strings.TrimSpace(req.Prompt) != "" {
		messages = append(messages, llm.TextMessage(llm.RoleUser, req.Prompt))
	}
	request := activities.GenerateRequest{
		Target:  target,
		Request: profile.Request(messages...),
	}

	activity := generateActivities.GenerateContent
	if req.Stream {
		activity = generateActivities.StreamContent
	}

	logger.Info("Generating content", "model", target.ModelID, "auth_mode", target.AuthMode.String(), "stream", req.Stream)

	var result llm.ContentResult
	err = workflow.ExecuteActivity(withGenerateActivityOptions(ctx), activity, request).Get(ctx, &result)
	if err != nil {
		return nil, err
	}

	logger.Info("Workflow completed.", "model", result.Model, "stop_reason", result.StopReason)
	return &result, nil
}

// resolveTarget merges the request overrides into the profile.
func resolveTarget(profile config.Profile, req GenerateWorkflowRequest) (activities.Target, error) {
	model := profile.Model
	if req.Model != "" {
		model = req.Model
	}
	if model == "" {
		return activities.Target{}, temporal.NewNonRetryableApplicationError("no model configured", llm.ConfigErrorType, nil)
	}

	rawMode := profile.AuthMode
	if req.AuthMode != "" {
		rawMode = req.AuthMode
	}
	mode, err := llm.ParseAuthMode(rawMode)
	if err != nil {
		return activities.Target{}, temporal.NewNonRetryableApplicationError(err.Error(), llm.ConfigErrorType, err)
	}

	return activities.Target{ModelID: model, AuthMode: mode}, nil
}
