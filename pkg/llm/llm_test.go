package llm_test

import (
	"PostcardAgent/pkg/llm"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestLLMHandler_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  见字如面  "},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`)
	}))
	defer srv.Close()

	h := llm.NewLLMHandler("test-key", srv.URL, newLogger())
	out, err := h.Complete(context.Background(), llm.CompletionRequest{
		Model:        "qwen-turbo",
		SystemPrompt: "你是小明",
		UserMessage:  "hello",
		Temperature:  0.7,
		MaxTokens:    1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "见字如面", out)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
	assert.EqualValues(t, 1000, got["max_tokens"])
}

func TestLLMHandler_CompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	h := llm.NewLLMHandler("k", srv.URL, newLogger())
	_, err := h.Complete(context.Background(), llm.CompletionRequest{Model: "m"})
	assert.Error(t, err)
}

func TestOllamaHandler_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, false, req["stream"])
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"你好"},"done":true}`)
	}))
	defer srv.Close()

	h := llm.NewOllamaHandler("", srv.URL, newLogger())
	out, err := h.Complete(context.Background(), llm.CompletionRequest{Model: "qwen2"})
	require.NoError(t, err)
	assert.Equal(t, "你好", out)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := llm.New("bard", "", "", newLogger())
	assert.Error(t, err)
}
