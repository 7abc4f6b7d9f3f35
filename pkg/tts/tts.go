package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TrainRequest 自定义声音训练参数
type TrainRequest struct {
	Title       string
	Description string
	Visibility  string
	Samples     [][]byte
	Texts       []string
}

// TTS 语音合成与声音训练接口
type TTS interface {
	// Synthesize 合成语音，voiceRef 为空时使用默认声音
	Synthesize(ctx context.Context, text, voiceRef string) ([]byte, error)
	// Train 用样本训练声音模型，返回模型引用
	Train(ctx context.Context, req TrainRequest) (string, error)
	// Format 输出音频扩展名
	Format() string
}

// Options 提供方配置
type Options struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Format      string
	PollyRegion string
	PollyVoice  string
	Timeout     time.Duration
}

// New 按提供方创建 TTS 客户端
func New(opts Options, logger *logrus.Logger) (TTS, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch strings.ToLower(opts.Provider) {
	case "", "fish":
		return NewFishHandler(opts.APIKey, opts.BaseURL, opts.Format, opts.Timeout, logger), nil
	case "polly":
		return NewPollyHandler(PollyConfig{
			Region:  opts.PollyRegion,
			VoiceID: opts.PollyVoice,
			Timeout: opts.Timeout,
		}, nil, logger), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", opts.Provider)
	}
}
