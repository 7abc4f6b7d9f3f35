package tts

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"PostcardAgent/pkg/errors"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig Amazon Polly 配置
type PollyConfig struct {
	Region  string
	VoiceID string
	Timeout time.Duration
}

// PollyHandler Amazon Polly 合成，只支持预置声音
type PollyHandler struct {
	mu     sync.Mutex
	client synthClient
	cfg    PollyConfig
	logger *logrus.Logger
}

// NewPollyHandler client 为空时首次调用再加载 AWS 默认配置
func NewPollyHandler(cfg PollyConfig, client synthClient, logger *logrus.Logger) *PollyHandler {
	cfg.Region = defaultString(cfg.Region, "us-east-1")
	cfg.VoiceID = defaultString(cfg.VoiceID, "Zhiyu")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PollyHandler{client: client, cfg: cfg, logger: logger}
}

func (h *PollyHandler) Format() string { return "mp3" }

// Synthesize voiceRef 是其他提供方训练的模型，Polly 无法使用，统一走预置声音
func (h *PollyHandler) Synthesize(ctx context.Context, text, voiceRef string) ([]byte, error) {
	client, err := h.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	if voiceRef != "" {
		h.logger.WithField("voice_ref", voiceRef).Debug("polly ignores trained voice reference")
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       pollytypes.EngineStandard,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(h.cfg.VoiceID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			h.logger.WithField("code", apiErr.ErrorCode()).Warn("polly api error")
		}
		return nil, fmt.Errorf("polly synthesize: %w", err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, errors.New("polly returned empty audio")
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("polly read audio: %w", err)
	}
	return audio, nil
}

// Train Polly 不支持自定义声音
func (h *PollyHandler) Train(ctx context.Context, req TrainRequest) (string, error) {
	return "", errors.WithCodef(errors.CodeUnsupported, "polly cannot train voice %q", req.Title)
}

func (h *PollyHandler) resolveClient(ctx context.Context) (synthClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(h.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	h.client = polly.NewFromConfig(awsCfg)
	return h.client, nil
}
