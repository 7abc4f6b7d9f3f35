package stores

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Store 对象存储接口
type Store interface {
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// NewStore 按驱动创建对象存储
func NewStore(driver string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "minio":
		return NewMinioStore(), nil
	case "cos":
		return NewCosStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}

// KeyFromURL 如果 rawURL 指向本存储的公开地址，返回对象键
func KeyFromURL(s Store, rawURL string) (string, bool) {
	base := s.PublicURL("")
	if base == "" || !strings.HasPrefix(rawURL, base) {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, base)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}

// ContentTypeFor 根据音频扩展名返回 Content-Type
func ContentTypeFor(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
