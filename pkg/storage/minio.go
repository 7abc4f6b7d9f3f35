package stores

import (
	"PostcardAgent/pkg/util"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioStore struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
	BaseURL   string `env:"MINIO_PUBLIC_BASE"` // 对外访问域名，可选

	// 连接在进程启动时创建一次并复用
	once      sync.Once
	cli       *minio.Client
	cliErr    error
	bucketOK  bool
	bucketMux sync.Mutex
}

func NewMinioStore() *MinioStore {
	return &MinioStore{
		Endpoint:  util.GetEnvDefault("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: util.GetEnvDefault("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: util.GetEnvDefault("MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    util.GetEnvDefault("MINIO_BUCKET", "memoshop-agent-bucket"),
		UseSSL:    util.GetBoolEnv("MINIO_USE_SSL"),
		BaseURL:   util.GetEnv("MINIO_PUBLIC_BASE"),
	}
}

func (m *MinioStore) client() (*minio.Client, error) {
	m.once.Do(func() {
		m.cli, m.cliErr = minio.New(m.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(m.AccessKey, m.SecretKey, ""),
			Secure: m.UseSSL,
		})
	})
	return m.cli, m.cliErr
}

func (m *MinioStore) ensureBucket(ctx context.Context, cli *minio.Client) error {
	m.bucketMux.Lock()
	defer m.bucketMux.Unlock()
	if m.bucketOK {
		return nil
	}
	exists, err := cli.BucketExists(ctx, m.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, m.Bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	m.bucketOK = true
	return nil
}

func (m *MinioStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	cli, err := m.client()
	if err != nil {
		return nil, 0, err
	}
	obj, err := cli.GetObject(ctx, m.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, err
	}
	return obj, st.Size, nil
}

func (m *MinioStore) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	cli, err := m.client()
	if err != nil {
		return err
	}
	if err := m.ensureBucket(ctx, cli); err != nil {
		return err
	}
	_, err = cli.PutObject(ctx, m.Bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (m *MinioStore) PublicURL(key string) string {
	if m.BaseURL != "" {
		return strings.TrimRight(m.BaseURL, "/") + "/" + m.Bucket + "/" + key
	}
	// 回退使用 endpoint（注意直连可能需配置公共读策略）
	scheme := "http://"
	if m.UseSSL {
		scheme = "https://"
	}
	return scheme + m.Endpoint + "/" + m.Bucket + "/" + key
}
