package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// CompletionRequest 一次单轮补全请求
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	Temperature  float32
	MaxTokens    int
}

// LLM represents a generic interface for interacting with LLMs
type LLM interface {
	// Complete sends one system+user exchange and returns the assistant text
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// New 按提供方创建 LLM 客户端
func New(provider, apiKey, baseURL string, logger *logrus.Logger) (LLM, error) {
	switch strings.ToLower(provider) {
	case "", "openai":
		return NewLLMHandler(apiKey, baseURL, logger), nil
	case "ollama":
		return NewOllamaHandler(apiKey, baseURL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
