package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
	"github.com/bryanwahyu/estate-compliance/internal/infra/ai/prompt"
)

const maxTokens = 4096

// Client produces compliance analyses with a chat completion. It is a
// compliance.AnalysisFetcher returning the raw choices array.
type Client struct {
	*openai.Client
	Model string
	// Buildings, when set, adds the building description to the prompt unless the
	// context already carries the building (compliance.WithBuilding).
	Buildings compliance.BuildingFetcher
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

func (c *Client) FetchAnalysis(ctx context.Context, id compliance.SubjectID) ([]byte, error) {
	b, ok := compliance.BuildingFromContext(ctx)
	switch {
	case ok:
		// already fetched by the building gate
	case c.Buildings != nil:
		fetched, err := c.Buildings.FetchBuilding(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("building for prompt: %w", err)
		}
		b = fetched
	default:
		b = &compliance.Building{ID: id}
	}

	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(b)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuota(err) {
			return nil, fmt.Errorf("%w: %w", compliance.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("%w: failed to create chat completion: %w", compliance.ErrNetwork, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: chat completion without choices", compliance.ErrNetwork)
	}

	// choices keep the message.content envelope the normalizer understands
	return json.Marshal(resp.Choices)
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func isQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.Type == "insufficient_quota"
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
