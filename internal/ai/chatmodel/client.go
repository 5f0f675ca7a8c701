// Package chatmodel adapts eino chat models to ai.Generator.
package chatmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/spigell/tender-matcher/internal/logger"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	defaultOpenAIModel = "gpt-4o-mini"
	defaultOllamaModel = "llama3.1"
	defaultOllamaURL   = "http://localhost:11434"
)

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Config holds the connection and decoding parameters of the chat model.
type Config struct {
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// Generator sends single-shot chat completions through an eino chat model.
type Generator struct {
	chat     chatModel
	provider string
	model    string
	logger   *zap.Logger
}

// NewOpenAI builds an OpenAI-compatible chat model. BaseURL may point at any compatible endpoint.
func NewOpenAI(ctx context.Context, apiKey string, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	name := orDefault(cfg.Model, defaultOpenAIModel)

	modelCfg := &einoopenai.ChatModelConfig{
		APIKey:      apiKey,
		Model:       name,
		BaseURL:     strings.TrimSpace(cfg.BaseURL),
		Temperature: &cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		modelCfg.MaxTokens = &cfg.MaxTokens
	}

	chat, err := einoopenai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}

	return newGenerator(chat, ProviderOpenAI, name, log), nil
}

// NewOllama builds a chat model served by a local Ollama instance. No key is needed.
func NewOllama(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	name := orDefault(cfg.Model, defaultOllamaModel)

	chat, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: orDefault(cfg.BaseURL, defaultOllamaURL),
		Model:   name,
	})
	if err != nil {
		return nil, fmt.Errorf("create ollama chat model: %w", err)
	}

	return newGenerator(chat, ProviderOllama, name, log), nil
}

func newGenerator(chat chatModel, provider, name string, log *zap.Logger) *Generator {
	return &Generator{
		chat:     chat,
		provider: provider,
		model:    name,
		logger:   logger.WithCommonFields(log, provider, name),
	}
}

func (g *Generator) GenerateContent(ctx context.Context, systemInstruction, prompt string) (string, error) {
	if g == nil || g.chat == nil {
		return "", errors.New("chat generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	messages := make([]*schema.Message, 0, 2)
	if system := strings.TrimSpace(systemInstruction); system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	messages = append(messages, schema.UserMessage(prompt))

	resp, err := g.chat.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", g.provider, err)
	}

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%s returned empty response", g.provider)
	}

	g.logger.Debug("chat response received")

	return strings.TrimSpace(resp.Content), nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
