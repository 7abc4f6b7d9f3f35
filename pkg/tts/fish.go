package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultFishBaseURL = "https://api.fish.audio"

// FishHandler Fish Audio 语音合成与声音克隆
type FishHandler struct {
	apiKey  string
	baseURL string
	format  string
	client  *http.Client
	logger  *logrus.Logger
}

type fishTTSRequest struct {
	Text        string `json:"text"`
	ReferenceID string `json:"reference_id,omitempty"`
	Format      string `json:"format"`
}

type fishModelResponse struct {
	ID    string `json:"_id"`
	State string `json:"state"`
}

// NewFishHandler creates a new Fish Audio handler
func NewFishHandler(apiKey, baseURL, format string, timeout time.Duration, logger *logrus.Logger) *FishHandler {
	if baseURL == "" {
		baseURL = defaultFishBaseURL
	}
	if format == "" {
		format = "wav"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FishHandler{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		format:  format,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (h *FishHandler) Format() string { return h.format }

// Synthesize 调用 /v1/tts 返回完整音频
func (h *FishHandler) Synthesize(ctx context.Context, text, voiceRef string) ([]byte, error) {
	if h.apiKey == "" {
		return nil, errors.New("fish audio api key not configured")
	}
	body, err := json.Marshal(fishTTSRequest{Text: text, ReferenceID: voiceRef, Format: h.format})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, h.statusError("tts", resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("fish audio returned empty audio")
	}

	h.logger.WithFields(logrus.Fields{
		"chars":     len([]rune(text)),
		"bytes":     len(audio),
		"reference": voiceRef,
	}).Debug("fish synthesize done")
	return audio, nil
}

// Train 通过 /model 创建快速训练的 tts 模型
func (h *FishHandler) Train(ctx context.Context, tr TrainRequest) (string, error) {
	if h.apiKey == "" {
		return "", errors.New("fish audio api key not configured")
	}
	if len(tr.Samples) == 0 {
		return "", errors.New("no voice samples")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"title", tr.Title},
		{"description", tr.Description},
		{"visibility", defaultString(tr.Visibility, "private")},
		{"type", "tts"},
		{"train_mode", "fast"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	for i, sample := range tr.Samples {
		part, err := mw.CreateFormFile("voices", fmt.Sprintf("sample_%d.wav", i))
		if err != nil {
			return "", err
		}
		if _, err := part.Write(sample); err != nil {
			return "", err
		}
	}
	for _, text := range tr.Texts {
		if err := mw.WriteField("texts", text); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/model", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", h.statusError("create model", resp)
	}
	var out fishModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("fish audio returned empty model id")
	}

	h.logger.WithFields(logrus.Fields{"model_id": out.ID, "title": tr.Title}).Info("fish voice model created")
	return out.ID, nil
}

func (h *FishHandler) statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	h.logger.WithFields(logrus.Fields{"op": op, "status": resp.StatusCode}).Warn("fish audio request failed")
	return fmt.Errorf("fish audio %s status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
