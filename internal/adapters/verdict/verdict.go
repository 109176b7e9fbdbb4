package verdict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

const DefaultModel = "gpt-4o-mini"

// Result is the adapter's opinion on a candidate identity. Confidence
// is the model's self-reported certainty in [0, 1]; Protected names the
// matched identity and is empty when Match is false.
type Result struct {
	Match      bool    `json:"match"`
	Protected  string  `json:"protected_name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Client classifies a candidate display identity against a protected
// set. Implementations are black boxes: callers only see the Result.
type Client interface {
	CheckImpersonation(ctx context.Context, candidate string, protected []string) (*Result, error)
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type API struct {
	client chatCompleter
	model  string
	logger *log.Entry
}

func NewOpenAI(apiKey, model, baseURL string, logger *log.Entry) *API {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &API{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

const impersonationPrompt = `You are an identity-protection system for a chat community. ` +
	`You receive a candidate display name and a list of protected member names. ` +
	`Decide whether the candidate is attempting to impersonate any protected member, ` +
	`accounting for homoglyphs, transliteration, spacing tricks and lookalike unicode. ` +
	`Respond with a single JSON object: {"match": bool, "protected_name": string, ` +
	`"confidence": number between 0 and 1, "reason": string}. ` +
	`Set protected_name to the matched name from the list, or "" when match is false.`

func (a *API) CheckImpersonation(ctx context.Context, candidate string, protected []string) (*Result, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: impersonationPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Candidate: %q\nProtected names: %s", candidate, strings.Join(protected, ", ")),
			},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices available")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		a.logger.WithField("content", content).WithError(err).Warn("undecodable verdict response")
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &result, nil
}
