// Package moderation classifies confession text before it is posted.
// Every failure path allows the post.
package moderation

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	ReasonDevMode     = "Dev mode"
	ReasonBusy        = "Auto-approved (AI busy)"
	ReasonUnavailable = "Service busy, posted anyway"
)

const systemPrompt = `Analyze the following confession text for harmful, explicit, hate speech, or bullying content.
It is for a public anonymous board. Strict safety is required.
Reply with a JSON object {"allowed": boolean, "reason": string}.`

// Result is the verdict for one text.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Gateway calls an OpenAI-compatible chat model.
type Gateway struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewGateway returns a Gateway. An empty apiKey yields a Gateway that allows
// everything without calling out.
func NewGateway(apiKey, baseURL, model string, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{model: model, log: log}
	if apiKey == "" {
		log.Warn("moderation API key missing, allowing content (dev mode)")
		return g
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	g.client = openai.NewClientWithConfig(cfg)
	return g
}

// Classify never fails; see the Reason* constants for the fail-open verdicts.
func (g *Gateway) Classify(ctx context.Context, text string) Result {
	if g.client == nil {
		return Result{Allowed: true, Reason: ReasonDevMode}
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		g.log.Warn("moderation call failed", zap.Error(err))
		return Result{Allowed: true, Reason: ReasonUnavailable}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Result{Allowed: true, Reason: ReasonBusy}
	}

	var verdict struct {
		Allowed *bool  `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil || verdict.Allowed == nil {
		g.log.Warn("moderation verdict malformed", zap.String("content", resp.Choices[0].Message.Content))
		return Result{Allowed: true, Reason: ReasonUnavailable}
	}
	return Result{Allowed: *verdict.Allowed, Reason: verdict.Reason}
}
