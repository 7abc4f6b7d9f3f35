package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// LLMHandler OpenAI 兼容接口（OpenAI、SiliconFlow、DashScope 等）
type LLMHandler struct {
	client *openai.Client
	logger *logrus.Logger
}

// NewLLMHandler creates a new OpenAI compatible handler
func NewLLMHandler(apiKey, endpoint string, logger *logrus.Logger) *LLMHandler {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = strings.TrimRight(endpoint, "/")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LLMHandler{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

// Complete queries the LLM with a system prompt and user text
func (h *LLMHandler) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := h.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			h.logger.WithFields(logrus.Fields{
				"model":  req.Model,
				"status": apiErr.HTTPStatusCode,
			}).Warn("llm api error")
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	h.logger.WithFields(logrus.Fields{
		"model":  req.Model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("llm completion done")
	return content, nil
}
