package gemini

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type modelCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeModels struct {
	resp  *genai.GenerateContentResponse
	err   error
	calls []modelCall
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, modelCall{model: model, contents: contents, config: config})
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestGeneratorSendsSystemInstructionAndDecodingParams(t *testing.T) {
	models := &fakeModels{resp: textResponse("score: 0.8", "", "Strong fit")}
	g := newGenerator(models, Config{Model: "gemini-pro", Temperature: 0.2, MaxOutputTokens: 500}, zap.NewNop())

	output, err := g.GenerateContent(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "score: 0.8\nStrong fit" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected a single call, got %d", len(models.calls))
	}

	call := models.calls[0]
	if call.model != "gemini-pro" {
		t.Fatalf("unexpected model: %q", call.model)
	}
	if call.config == nil || call.config.SystemInstruction == nil {
		t.Fatal("expected system instruction to be set")
	}
	if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
		t.Fatalf("unexpected system instruction: %q", got)
	}
	if call.config.Temperature == nil || *call.config.Temperature != 0.2 {
		t.Fatalf("unexpected temperature: %v", call.config.Temperature)
	}
	if call.config.MaxOutputTokens != 500 {
		t.Fatalf("unexpected max output tokens: %d", call.config.MaxOutputTokens)
	}
	if len(call.contents) != 1 || call.contents[0].Parts[0].Text != "message" {
		t.Fatalf("unexpected contents: %+v", call.contents)
	}
}

func TestGeneratorDoesNotRetry(t *testing.T) {
	models := &fakeModels{err: errors.New("internal")}
	g := newGenerator(models, Config{}, zap.NewNop())

	if _, err := g.GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error to be returned")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single attempt, got %d", len(models.calls))
	}
	if g.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", g.Model())
	}
}

func TestGeneratorRejectsEmptyInputAndOutput(t *testing.T) {
	models := &fakeModels{resp: textResponse("   ")}
	g := newGenerator(models, Config{}, zap.NewNop())

	if _, err := g.GenerateContent(context.Background(), "sys", "  "); err == nil {
		t.Fatal("expected empty prompt to be rejected")
	}
	if len(models.calls) != 0 {
		t.Fatal("expected no call for an empty prompt")
	}

	if _, err := g.GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected empty response to be an error")
	}
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "  ", Config{}, zap.NewNop()); err == nil {
		t.Fatal("expected missing api key to be rejected")
	}
}
