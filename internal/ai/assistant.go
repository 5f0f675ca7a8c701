package ai

import (
	"context"
	"errors"
)

// ErrCancelled is returned by the augmenter when its request was cancelled
// before the provider answered.
var ErrCancelled = errors.New("analysis cancelled")

// Assessment is the parsed outcome of one analysis call.
type Assessment struct {
	Score   float64
	Reasons []string
	// Fallback marks a neutral assessment produced because the call failed.
	Fallback bool
	Raw      string
}

// Generator is a text completion provider.
type Generator interface {
	GenerateContent(ctx context.Context, systemInstruction, prompt string) (string, error)
	Model() string
}

// Unavailable returns a generator that fails every call with err. It lets a
// misconfigured provider degrade to fallback assessments instead of aborting a run.
func Unavailable(err error) Generator {
	if err == nil {
		err = errors.New("ai provider is not configured")
	}
	return unavailableGenerator{err: err}
}

type unavailableGenerator struct {
	err error
}

func (u unavailableGenerator) GenerateContent(context.Context, string, string) (string, error) {
	return "", u.err
}

func (u unavailableGenerator) Model() string { return "" }

// Decoding parameters every provider is configured with.
const (
	Temperature     float32 = 0.2
	MaxOutputTokens         = 500
)
