package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Hooks 运行中的统计回调，字段可为空
type Hooks struct {
	OnSoftFailure func(operation string)
	OnVoiceSource func(source VoiceSource)
}

func (h Hooks) softFailure(op string) {
	if h.OnSoftFailure != nil {
		h.OnSoftFailure(op)
	}
}

func (h Hooks) voiceSource(src VoiceSource) {
	if h.OnVoiceSource != nil {
		h.OnVoiceSource(src)
	}
}

// HTTPSampleFetcher 通过 HTTP GET 下载样本
type HTTPSampleFetcher struct {
	Client *http.Client
}

func NewHTTPSampleFetcher(timeout time.Duration) *HTTPSampleFetcher {
	return &HTTPSampleFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPSampleFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download sample: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSampleBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download sample: empty body")
	}
	return data, nil
}
