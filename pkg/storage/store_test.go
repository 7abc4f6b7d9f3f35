package stores

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinioPublicURL(t *testing.T) {
	m := &MinioStore{Endpoint: "localhost:9000", Bucket: "voices-bucket"}
	assert.Equal(t, "http://localhost:9000/voices-bucket/voices/a.wav", m.PublicURL("voices/a.wav"))

	m.UseSSL = true
	m.BaseURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/voices-bucket/voices/a.wav", m.PublicURL("voices/a.wav"))
}

func TestKeyFromURL(t *testing.T) {
	m := &MinioStore{Endpoint: "minio:9000", Bucket: "b"}

	key, ok := KeyFromURL(m, "http://minio:9000/b/samples/character_1.wav?x=1")
	assert.True(t, ok)
	assert.Equal(t, "samples/character_1.wav", key)

	_, ok = KeyFromURL(m, "http://sample.audio")
	assert.False(t, ok)
}

func TestCosPublicURL(t *testing.T) {
	s := &CosStore{BucketURL: "https://b-1250000000.cos.ap-guangzhou.myqcloud.com"}
	assert.Equal(t, "https://b-1250000000.cos.ap-guangzhou.myqcloud.com/voices/x.mp3", s.PublicURL("voices/x.mp3"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("mp3"))
	assert.Equal(t, "audio/wav", ContentTypeFor(".WAV"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("flac"))
}
