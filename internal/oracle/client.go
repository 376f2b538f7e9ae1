package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/veriline/veriline-backend/pkg/config"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
)

const relevanceSystemPrompt = `You judge whether an invoice line item is a legitimate facility-maintenance material or equipment purchase for the given work context. Labor, taxes, fees, meals, and personal items are never relevant. Respond with a single JSON object: {"is_relevant": bool, "confidence": number between 0 and 1, "reason": string}. No other text.`

const kindSystemPrompt = `You classify a facility-maintenance catalog item as "material" (consumed or installed: pipe, wire, filters, fasteners, sealant) or "equipment" (durable tools and machines: compressors, pumps, drills, gauges). Respond with a single JSON object: {"kind": "material" or "equipment", "confidence": number between 0 and 1}. No other text.`

// Claim is the item-plus-context a relevance judgment is requested for.
type Claim struct {
	ItemName    string
	Description string
	ServiceLine string
	ServiceType string
	ScopeOfWork string
}

// Judgment is the oracle's relevance verdict for a claim.
type Judgment struct {
	IsRelevant bool
	Confidence float64
	Reason     string
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client calls a chat-completion model for relevance judgments and item-kind
// classification. A nil Client is returned when no API key is configured;
// callers treat that as "oracle unavailable" rather than an error.
type Client struct {
	api     chatCompleter
	model   string
	timeout time.Duration
}

// NewClient builds an oracle client from config, or returns nil when the
// API key is blank.
func NewClient(cfg config.OpenAIConfig) *Client {
	if !cfg.Enabled() {
		return nil
	}
	apiCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.Endpoint != "" {
		apiCfg.BaseURL = cfg.Endpoint
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		timeout: timeout,
	}
}

// Judge asks the model whether the claim's item belongs in its maintenance
// context. Transport and decode failures map to CodeDependency so callers
// can degrade to rule-only verdicts.
func (c *Client) Judge(ctx context.Context, claim Claim) (*Judgment, error) {
	content, err := c.complete(ctx, relevanceSystemPrompt, relevancePrompt(claim))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		IsRelevant bool    `json:"is_relevant"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := decodeObject(content, &decoded); err != nil {
		return nil, err
	}
	return &Judgment{
		IsRelevant: decoded.IsRelevant,
		Confidence: clamp01(decoded.Confidence),
		Reason:     strings.TrimSpace(decoded.Reason),
	}, nil
}

// ClassifyKind asks the model whether an item is material or equipment.
func (c *Client) ClassifyKind(ctx context.Context, name, description string) (enums.ItemKind, float64, error) {
	prompt := fmt.Sprintf("Item name: %s", strings.TrimSpace(name))
	if description = strings.TrimSpace(description); description != "" {
		prompt += fmt.Sprintf("\nDescription: %s", description)
	}

	content, err := c.complete(ctx, kindSystemPrompt, prompt)
	if err != nil {
		return "", 0, err
	}

	var decoded struct {
		Kind       string  `json:"kind"`
		Confidence float64 `json:"confidence"`
	}
	if err := decodeObject(content, &decoded); err != nil {
		return "", 0, err
	}
	kind, err := enums.ParseItemKind(decoded.Kind)
	if err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "oracle returned unknown item kind")
	}
	return kind, clamp01(decoded.Confidence), nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if c == nil || c.api == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "relevance oracle is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "oracle completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "oracle returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func relevancePrompt(claim Claim) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item name: %s", strings.TrimSpace(claim.ItemName))
	if v := strings.TrimSpace(claim.Description); v != "" {
		fmt.Fprintf(&b, "\nDescription: %s", v)
	}
	if v := strings.TrimSpace(claim.ServiceLine); v != "" {
		fmt.Fprintf(&b, "\nService line: %s", v)
	}
	if v := strings.TrimSpace(claim.ServiceType); v != "" {
		fmt.Fprintf(&b, "\nService type: %s", v)
	}
	if v := strings.TrimSpace(claim.ScopeOfWork); v != "" {
		fmt.Fprintf(&b, "\nScope of work: %s", v)
	}
	return b.String()
}

func decodeObject(content string, target any) error {
	payload, err := extractJSON(content)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "oracle returned malformed response")
	}
	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "oracle returned malformed response")
	}
	return nil
}

// extractJSON returns the first balanced JSON object in content. Models wrap
// JSON in prose or code fences often enough that a bare unmarshal fails.
func extractJSON(content string) (string, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

func clamp01(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	}
	return value
}
