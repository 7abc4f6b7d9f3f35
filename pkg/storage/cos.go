package stores

import (
	"PostcardAgent/pkg/util"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// CosStore 腾讯云对象存储
type CosStore struct {
	BucketURL string `env:"COS_BUCKET_URL"` // https://<bucket>-<appid>.cos.<region>.myqcloud.com
	SecretID  string `env:"COS_SECRET_ID"`
	SecretKey string `env:"COS_SECRET_KEY"`
	BaseURL   string `env:"COS_PUBLIC_BASE"` // CDN 域名，可选

	cli *cos.Client
}

func NewCosStore() *CosStore {
	s := &CosStore{
		BucketURL: util.GetEnv("COS_BUCKET_URL"),
		SecretID:  util.GetEnv("COS_SECRET_ID"),
		SecretKey: util.GetEnv("COS_SECRET_KEY"),
		BaseURL:   util.GetEnv("COS_PUBLIC_BASE"),
	}
	s.cli = newCosClient(s.BucketURL, s.SecretID, s.SecretKey)
	return s
}

func newCosClient(bucketURL, secretID, secretKey string) *cos.Client {
	u, err := url.Parse(bucketURL)
	if err != nil {
		u = &url.URL{}
	}
	return cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	})
}

func (s *CosStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := s.cli.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (s *CosStore) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType:   contentType,
			ContentLength: size,
		},
	}
	_, err := s.cli.Object.Put(ctx, key, r, opt)
	return err
}

func (s *CosStore) PublicURL(key string) string {
	base := s.BaseURL
	if base == "" {
		base = s.BucketURL
	}
	return strings.TrimRight(base, "/") + "/" + key
}
