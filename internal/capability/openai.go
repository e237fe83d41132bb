package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"adforge/internal/campaign"
	"adforge/internal/logging"
)

const defaultOpenAITextModel = openai.ChatModelGPT4oMini

// OpenAIText is the alternate text capability, selected when the configured
// text provider is "openai". It only implements TextGenerator; image and
// video stay on the Google stack.
type OpenAIText struct {
	client openai.Client
}

// NewOpenAIText creates an OpenAI-backed text generator.
func NewOpenAIText(apiKey string) (*OpenAIText, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return &OpenAIText{client: openai.NewClient(option.WithAPIKey(apiKey))}, nil
}

// GenerateText produces copy via the chat completions API.
func (o *OpenAIText) GenerateText(ctx context.Context, prompt string, brand BrandContext, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = defaultOpenAITextModel
	}
	callCtx, cancel := callContext(ctx, opts, 30*time.Second)
	defer cancel()

	logging.APIDebug("openai text call (model=%s, prompt=%d chars)", model, len(prompt))
	resp, err := o.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(brand.SystemPrompt()),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", classifyOpenAIError("text generation", err)
	}
	if len(resp.Choices) == 0 {
		return "", &campaign.ExternalServiceError{
			Provider:  "openai",
			Operation: "text generation",
			Transient: true,
			Err:       errors.New("no choices returned"),
		}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &campaign.ContentPolicyError{Provider: "openai", Reason: "content filter"}
	}
	if choice.Message.Content == "" {
		return "", &campaign.ExternalServiceError{
			Provider:  "openai",
			Operation: "text generation",
			Transient: true,
			Err:       errors.New("empty completion"),
		}
	}
	return choice.Message.Content, nil
}

func classifyOpenAIError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &campaign.ExternalServiceError{
			Provider: "openai", Operation: operation, Transient: true, Err: err,
		}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &campaign.ExternalServiceError{
				Provider: "openai", Operation: operation, Transient: false, Err: err,
			}
		case apiErr.StatusCode >= 500:
			return &campaign.ExternalServiceError{
				Provider: "openai", Operation: operation, Transient: true, Err: err,
			}
		}
		return &campaign.ExternalServiceError{
			Provider: "openai", Operation: operation, Transient: false, Err: err,
		}
	}

	return &campaign.ExternalServiceError{
		Provider: "openai", Operation: operation, Transient: true, Err: err,
	}
}
