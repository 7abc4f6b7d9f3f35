package pipeline

import (
	"context"
	"io"

	"PostcardAgent/internal/models"
	"PostcardAgent/pkg/llm"
	"PostcardAgent/pkg/tts"
)

// CharacterDirectory 角色资料查询，角色不存在时返回 (nil, nil)
type CharacterDirectory interface {
	GetCharacter(ctx context.Context, id uint) (*models.Character, error)
	GetVoiceProfile(ctx context.Context, characterID uint) (*models.CharacterVoiceProfile, error)
}

// RecordStore 明信片与角色 voice_id 的写入
type RecordStore interface {
	InsertPostcard(ctx context.Context, conversationID string, userID, characterID uint, kind models.PostcardKind, content string) (int64, error)
	UpdatePostcardVoice(ctx context.Context, conversationID string, voiceURL *string) (int64, error)
	UpdatePostcardStatus(ctx context.Context, conversationID string, status models.PostcardStatus) (int64, error)
	UpdateCharacterVoiceID(ctx context.Context, characterID uint, voiceID string) (int64, error)
}

// ObjectStore 语音文件存储
type ObjectStore interface {
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// SampleFetcher 下载训练样本
type SampleFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Deps 流程依赖
type Deps struct {
	Characters CharacterDirectory
	Records    RecordStore
	LLM        llm.LLM
	TTS        tts.TTS
	Objects    ObjectStore
	Samples    SampleFetcher
}
