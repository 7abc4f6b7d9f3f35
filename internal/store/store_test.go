package store

import (
	"context"
	"testing"
	"time"

	"PostcardAgent/internal/models"
	"PostcardAgent/pkg/cache"
	"PostcardAgent/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := util.InitDatabase("sqlite", "file::memory:")
	require.NoError(t, err)
	s := New(db, opts...)
	require.NoError(t, s.AutoMigrate())
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return s
}

func strPtr(s string) *string { return &s }

func seedCharacter(t *testing.T, s *Store, c *models.Character) {
	t.Helper()
	require.NoError(t, s.DB().Create(c).Error)
}

func TestInsertPostcardAlwaysSent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.InsertPostcard(ctx, "c1", 1, 2, models.PostcardKindAI, "见字如面")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// 同一会话再次插入产生新记录
	_, err = s.InsertPostcard(ctx, "c1", 1, 2, models.PostcardKindAI, "第二封")
	require.NoError(t, err)

	cards, err := s.ListPostcards(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, models.PostcardStatusSent, cards[0].Status)
	assert.Equal(t, models.PostcardKindAI, cards[0].Kind)
	assert.Nil(t, cards[0].VoiceURL)
	assert.False(t, cards[0].CreatedAt.IsZero())
}

func TestUpdatePostcardVoiceNoMatch(t *testing.T) {
	s := newTestStore(t)
	n, err := s.UpdatePostcardVoice(context.Background(), "missing", strPtr("http://x"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestUpdatePostcardVoiceOnlyTouchesAICards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertPostcard(ctx, "c1", 1, 1, models.PostcardKindUser, "你好")
	require.NoError(t, err)
	_, err = s.InsertPostcard(ctx, "c1", 1, 1, models.PostcardKindAI, "见字如面")
	require.NoError(t, err)

	n, err := s.UpdatePostcardVoice(ctx, "c1", strPtr("http://minio/voices/a.wav"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	cards, err := s.ListPostcards(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Nil(t, cards[0].VoiceURL)
	require.NotNil(t, cards[1].VoiceURL)
	assert.Equal(t, "http://minio/voices/a.wav", *cards[1].VoiceURL)
}

func TestUpdatePostcardVoiceCoversEveryAICardInConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertPostcard(ctx, "c1", 1, 1, models.PostcardKindAI, "第一张")
	require.NoError(t, err)
	_, err = s.InsertPostcard(ctx, "c1", 1, 1, models.PostcardKindAI, "第二张")
	require.NoError(t, err)

	n, err := s.UpdatePostcardVoice(ctx, "c1", strPtr("http://minio/voices/b.wav"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	cards, err := s.ListPostcards(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	for _, c := range cards {
		require.NotNil(t, c.VoiceURL)
		assert.Equal(t, "http://minio/voices/b.wav", *c.VoiceURL)
	}
}

func TestUpdatePostcardStatusMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertPostcard(ctx, "c1", 1, 1, models.PostcardKindAI, "hi")
	require.NoError(t, err)

	n, err := s.UpdatePostcardStatus(ctx, "c1", models.PostcardStatusDelivered)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.UpdatePostcardStatus(ctx, "c1", models.PostcardStatusDelivered)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	cards, err := s.ListPostcards(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.PostcardStatusDelivered, cards[0].Status)
}

func TestUpdateCharacterVoiceIDWritesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCharacter(t, s, &models.Character{Name: "阿月", Description: "d", VoiceURL: strPtr("http://sample.audio")})

	n, err := s.UpdateCharacterVoiceID(ctx, 1, "voice-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.UpdateCharacterVoiceID(ctx, 1, "voice-2")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	p, err := s.GetVoiceProfile(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p.VoiceID)
	assert.Equal(t, "voice-1", *p.VoiceID)
	assert.Equal(t, "http://sample.audio", *p.VoiceURL)
}

func TestGetVoiceProfileMissingCharacter(t *testing.T) {
	s := newTestStore(t)
	p, err := s.GetVoiceProfile(context.Background(), 42)
	require.NoError(t, err)
	assert.EqualValues(t, 42, p.CharacterID)
	assert.Nil(t, p.VoiceID)
	assert.Nil(t, p.VoiceURL)
}

func TestGetCharacterCachedAndInvalidated(t *testing.T) {
	c := cache.NewGoCache(cache.LocalConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute})
	s := newTestStore(t, WithCache(c, "gocache", time.Minute))
	ctx := context.Background()
	seedCharacter(t, s, &models.Character{Name: "阿月", Description: "d"})

	got, err := s.GetCharacter(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "阿月", got.Name)
	_, cached := c.Get(ctx, characterKey(1))
	assert.True(t, cached)

	// 直接改库，缓存仍返回旧值
	require.NoError(t, s.DB().Model(&models.Character{}).Where("id = ?", 1).Update("name", "新名字").Error)
	got, err = s.GetCharacter(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "阿月", got.Name)

	_, err = s.UpdateCharacterVoiceID(ctx, 1, "voice-1")
	require.NoError(t, err)
	_, cached = c.Get(ctx, characterKey(1))
	assert.False(t, cached)

	got, err = s.GetCharacter(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "新名字", got.Name)
	require.NotNil(t, got.VoiceID)
	assert.Equal(t, "voice-1", *got.VoiceID)
}

func TestGetCharacterNotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetCharacter(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPingAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	seedCharacter(t, s, &models.Character{Name: "a", Description: "b"})

	n, err := s.CountCharacters(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
