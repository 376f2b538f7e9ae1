package oracle

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/veriline/veriline-backend/pkg/config"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
)

type stubCompleter struct {
	content    string
	err        error
	lastPrompt string
	noChoices  bool
}

func (s *stubCompleter) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if len(request.Messages) > 0 {
		s.lastPrompt = request.Messages[len(request.Messages)-1].Content
	}
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	if s.noChoices {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func newClientForTests(stub *stubCompleter) *Client {
	return &Client{api: stub, model: "test-model", timeout: time.Second}
}

func TestNewClientNilWithoutKey(t *testing.T) {
	if c := NewClient(config.OpenAIConfig{APIKey: "  "}); c != nil {
		t.Fatal("expected nil client when API key is blank")
	}
	if c := NewClient(config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"}); c == nil {
		t.Fatal("expected client when API key is set")
	}
}

func TestJudgeParsesFencedJSON(t *testing.T) {
	stub := &stubCompleter{content: "```json\n{\"is_relevant\": true, \"confidence\": 0.91, \"reason\": \"plumbing material\"}\n```"}
	client := newClientForTests(stub)

	judgment, err := client.Judge(context.Background(), Claim{ItemName: "copper pipe", ServiceLine: "plumbing"})
	if err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if !judgment.IsRelevant {
		t.Fatal("expected relevant judgment")
	}
	if math.Abs(judgment.Confidence-0.91) > 1e-9 {
		t.Fatalf("expected confidence 0.91, got %f", judgment.Confidence)
	}
	if judgment.Reason != "plumbing material" {
		t.Fatalf("unexpected reason %q", judgment.Reason)
	}
}

func TestJudgePromptCarriesContext(t *testing.T) {
	stub := &stubCompleter{content: `{"is_relevant": true, "confidence": 1, "reason": "ok"}`}
	client := newClientForTests(stub)

	_, err := client.Judge(context.Background(), Claim{
		ItemName:    "HVAC air filter",
		ServiceLine: "hvac",
		ScopeOfWork: "quarterly filter replacement",
	})
	if err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	for _, want := range []string{"HVAC air filter", "hvac", "quarterly filter replacement"} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("prompt missing %q: %s", want, stub.lastPrompt)
		}
	}
}

func TestJudgeClampsConfidence(t *testing.T) {
	stub := &stubCompleter{content: `{"is_relevant": false, "confidence": 7.5, "reason": "labor"}`}
	client := newClientForTests(stub)

	judgment, err := client.Judge(context.Background(), Claim{ItemName: "technician labor"})
	if err != nil {
		t.Fatalf("Judge returned error: %v", err)
	}
	if judgment.Confidence != 1 {
		t.Fatalf("expected clamped confidence 1, got %f", judgment.Confidence)
	}
}

func TestJudgeTransportErrorIsDependency(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	client := newClientForTests(stub)

	_, err := client.Judge(context.Background(), Claim{ItemName: "copper pipe"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %v", err)
	}
}

func TestJudgeNilClientIsDependency(t *testing.T) {
	var client *Client
	_, err := client.Judge(context.Background(), Claim{ItemName: "copper pipe"})
	if err == nil {
		t.Fatal("expected error from nil client")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %v", err)
	}
}

func TestJudgeNoChoicesIsDependency(t *testing.T) {
	client := newClientForTests(&stubCompleter{noChoices: true})

	_, err := client.Judge(context.Background(), Claim{ItemName: "copper pipe"})
	if err == nil || !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %v", err)
	}
}

func TestClassifyKind(t *testing.T) {
	stub := &stubCompleter{content: `{"kind": "equipment", "confidence": 0.88}`}
	client := newClientForTests(stub)

	kind, confidence, err := client.ClassifyKind(context.Background(), "portable air compressor", "")
	if err != nil {
		t.Fatalf("ClassifyKind returned error: %v", err)
	}
	if kind != enums.ItemKindEquipment {
		t.Fatalf("expected equipment, got %s", kind)
	}
	if math.Abs(confidence-0.88) > 1e-9 {
		t.Fatalf("expected confidence 0.88, got %f", confidence)
	}
}

func TestClassifyKindRejectsUnknown(t *testing.T) {
	stub := &stubCompleter{content: `{"kind": "service", "confidence": 0.9}`}
	client := newClientForTests(stub)

	if _, _, err := client.ClassifyKind(context.Background(), "labor", ""); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "bare object", content: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", content: "Here you go:\n```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "nested", content: `{"a":{"b":2}} trailing`, want: `{"a":{"b":2}}`},
		{name: "braces in strings", content: `{"reason":"use {caution}"}`, want: `{"reason":"use {caution}"}`},
		{name: "escaped quote", content: `{"reason":"say \"hi\" {"}`, want: `{"reason":"say \"hi\" {"}`},
		{name: "no object", content: "nothing here", wantErr: true},
		{name: "unbalanced", content: `{"a":1`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSON(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

