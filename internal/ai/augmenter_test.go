package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/tender-matcher/internal/tender"
)

type stubGenerator struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
	calls      int
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, prompt string) (string, error) {
	s.calls++
	s.lastSystem = system
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

// blockingGenerator answers only when released or when its context is cancelled.
type blockingGenerator struct {
	release chan struct{}
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{release: make(chan struct{})}
}

func (b *blockingGenerator) GenerateContent(ctx context.Context, _, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.release:
		return "score: 0.7\nReleased", nil
	}
}

func (b *blockingGenerator) Model() string { return "blocking" }

type outcome struct {
	assessment *Assessment
	err        error
}

func augmentAsync(a *Augmenter) <-chan outcome {
	done := make(chan outcome, 1)
	go func() {
		assessment, err := a.Augment(context.Background(), testContract(), testClient())
		done <- outcome{assessment: assessment, err: err}
	}()
	return done
}

func waitPending(t *testing.T, a *Augmenter, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for a.Pending() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending requests, got %d", n, a.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()

	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("augment did not return in time")
		return outcome{}
	}
}

func testContract() *tender.Contract {
	return &tender.Contract{
		Title:       "IT modernization",
		Description: "cloud services migration",
		Value:       250000,
		Region:      "London",
	}
}

func testClient() *tender.ClientProfile {
	return &tender.ClientProfile{
		ID:                    "c1",
		BusinessName:          "Acme Cloud",
		Keywords:              []string{"cloud services", "migration"},
		PreferredLocation:     "UK Wide",
		AdditionalPreferences: "public sector only",
	}
}

func TestAugmentParsesResponse(t *testing.T) {
	stub := &stubGenerator{response: "score: 0.85\n- Requirements mention \"cloud services\"\n* London is covered by UK Wide *\n3. AI Analysis: Value fits the usual range\nA fourth statement"}
	a := NewAugmenter(stub, zap.NewNop(), Options{})

	assessment, err := a.Augment(context.Background(), testContract(), testClient())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if assessment.Score != 0.85 {
		t.Fatalf("expected score 0.85, got %v", assessment.Score)
	}
	if assessment.Fallback {
		t.Fatal("did not expect fallback")
	}

	expected := []string{
		"Requirements mention \"cloud services\"",
		"London is covered by UK Wide",
		"Value fits the usual range",
	}
	if len(assessment.Reasons) != len(expected) {
		t.Fatalf("unexpected reasons: %q", assessment.Reasons)
	}
	for i := range expected {
		if assessment.Reasons[i] != expected[i] {
			t.Fatalf("reason %d: expected %q, got %q", i, expected[i], assessment.Reasons[i])
		}
	}

	if stub.calls != 1 {
		t.Fatalf("expected exactly one request, got %d", stub.calls)
	}
	if stub.lastSystem != SystemInstruction {
		t.Fatalf("unexpected system instruction: %q", stub.lastSystem)
	}
	for _, want := range []string{"Title: IT modernization", "Value: £250,000", "Business: Acme Cloud", "Key services/expertise: cloud services, migration", "Additional preferences: public sector only"} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, stub.lastPrompt)
		}
	}
	if a.Pending() != 0 {
		t.Fatalf("expected no pending requests after completion, got %d", a.Pending())
	}
}

func TestAugmentFallsBackOnFailure(t *testing.T) {
	cases := []struct {
		name      string
		generator Generator
		reason    string
	}{
		{name: "no generator", generator: nil, reason: "ai provider is not configured"},
		{name: "missing credentials", generator: Unavailable(errors.New("openai api key is not configured")), reason: "openai api key is not configured"},
		{name: "provider error", generator: &stubGenerator{err: errors.New("503 service unavailable")}, reason: "503 service unavailable"},
		{name: "empty response", generator: &stubGenerator{response: "  \n "}, reason: "no response content from provider"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, observed := observer.New(zapcore.WarnLevel)
			a := NewAugmenter(tc.generator, zap.New(core), Options{})

			assessment, err := a.Augment(context.Background(), testContract(), testClient())
			if err != nil {
				t.Fatalf("expected failure to be folded into fallback, got %v", err)
			}

			if !assessment.Fallback || assessment.Score != 0.5 {
				t.Fatalf("unexpected fallback assessment: %+v", assessment)
			}
			if len(assessment.Reasons) != 1 || assessment.Reasons[0] != unableReasonStem+tc.reason {
				t.Fatalf("unexpected fallback reasons: %q", assessment.Reasons)
			}
			if observed.Len() == 0 {
				t.Fatal("expected failure to be logged")
			}
		})
	}
}

func TestAugmentFallsBackOnDeadline(t *testing.T) {
	a := NewAugmenter(newBlockingGenerator(), zap.NewNop(), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assessment, err := a.Augment(ctx, testContract(), testClient())
	if err != nil {
		t.Fatalf("expected timeout to fall back, got %v", err)
	}
	if !assessment.Fallback {
		t.Fatalf("expected fallback assessment, got %+v", assessment)
	}
}

func TestCancelPendingCancelsInFlightRequest(t *testing.T) {
	a := NewAugmenter(newBlockingGenerator(), zap.NewNop(), Options{})

	done := augmentAsync(a)
	waitPending(t, a, 1)

	if n := a.CancelPending(); n != 1 {
		t.Fatalf("expected 1 cancelled request, got %d", n)
	}

	o := receive(t, done)
	if !errors.Is(o.err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", o.err)
	}
	if o.assessment != nil {
		t.Fatalf("expected no assessment for cancelled call, got %+v", o.assessment)
	}
}

func TestCancelPendingWithoutRequestsIsNoop(t *testing.T) {
	a := NewAugmenter(&stubGenerator{response: "score: 0.9"}, zap.NewNop(), Options{})

	if n := a.CancelPending(); n != 0 {
		t.Fatalf("expected nothing to cancel, got %d", n)
	}

	if _, err := a.Augment(context.Background(), testContract(), testClient()); err != nil {
		t.Fatalf("augmenter should remain usable, got %v", err)
	}
}

func TestConcurrentRequestsHaveIndependentScopes(t *testing.T) {
	gen := newBlockingGenerator()
	a := NewAugmenter(gen, zap.NewNop(), Options{})

	first := augmentAsync(a)
	waitPending(t, a, 1)
	second := augmentAsync(a)
	waitPending(t, a, 2)

	close(gen.release)

	for _, ch := range []<-chan outcome{first, second} {
		o := receive(t, ch)
		if o.err != nil {
			t.Fatalf("expected sibling request to survive, got %v", o.err)
		}
		if o.assessment.Score != 0.7 {
			t.Fatalf("unexpected score: %v", o.assessment.Score)
		}
	}
}

func TestSupersedePendingCancelsOutstandingRequest(t *testing.T) {
	gen := newBlockingGenerator()
	a := NewAugmenter(gen, zap.NewNop(), Options{SupersedePending: true})

	first := augmentAsync(a)
	waitPending(t, a, 1)
	second := augmentAsync(a)

	o := receive(t, first)
	if !errors.Is(o.err, ErrCancelled) {
		t.Fatalf("expected first request to be superseded, got %v", o.err)
	}

	waitPending(t, a, 1)
	close(gen.release)

	o = receive(t, second)
	if o.err != nil {
		t.Fatalf("unexpected error for superseding request: %v", o.err)
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		score   float64
		reasons []string
	}{
		{
			name:    "no score line and no statements",
			raw:     "**\n\n---\n",
			score:   0.5,
			reasons: []string{completedReason},
		},
		{
			name:    "no score line keeps statements",
			raw:     "Strong sector overlap",
			score:   0.5,
			reasons: []string{"Strong sector overlap"},
		},
		{
			name:    "emphasised score",
			raw:     "Score: **0.72**\n## Good regional fit",
			score:   0.72,
			reasons: []string{"Good regional fit"},
		},
		{
			name:    "score above one is malformed",
			raw:     "score: 85\nok",
			score:   0.5,
			reasons: []string{"ok"},
		},
		{
			name:    "score on a ten point scale is malformed",
			raw:     "Score: 7/10\nok",
			score:   0.5,
			reasons: []string{"ok"},
		},
		{
			name:    "score of one",
			raw:     "score: 1.00",
			score:   1,
			reasons: []string{completedReason},
		},
		{
			name:    "reasons starting with numbers keep them",
			raw:     "score: 0.8\n2.5M budget fits the client's typical range\n- 12.5% margin is achievable\n1. 3 regional offices cover the area",
			score:   0.8,
			reasons: []string{"2.5M budget fits the client's typical range", "12.5% margin is achievable", "3 regional offices cover the area"},
		},
		{
			name:    "only one marker is stripped",
			raw:     "score: 0.4\n- - nested dash\n- **AI Analysis:** Buyer is local",
			score:   0.4,
			reasons: []string{"- nested dash", "Buyer is local"},
		},
		{
			name:    "at most three reasons",
			raw:     "score: 0.61\n- a\n- b\n- c\n- d",
			score:   0.61,
			reasons: []string{"a", "b", "c"},
		},
		{
			name:    "empty",
			raw:     "",
			score:   0.5,
			reasons: []string{completedReason},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseResponse(tt.raw)
			if got.Score != tt.score {
				t.Fatalf("expected score %v, got %v", tt.score, got.Score)
			}
			if strings.Join(got.Reasons, "|") != strings.Join(tt.reasons, "|") {
				t.Fatalf("expected reasons %q, got %q", tt.reasons, got.Reasons)
			}
			if got.Raw != tt.raw {
				t.Fatalf("expected raw response to be kept")
			}
		})
	}
}

func TestBuildPromptMarksMissingFields(t *testing.T) {
	prompt := BuildPrompt(&tender.Contract{Title: "Roads"}, &tender.ClientProfile{BusinessName: "Paving Ltd"})

	for _, want := range []string{"Value: Not stated", "Region: Not stated", "Preferred location: Not stated"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Fatalf("expected every placeholder to be replaced:\n%s", prompt)
	}
}
