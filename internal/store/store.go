package store

import (
	"context"
	"fmt"
	"time"

	"PostcardAgent/internal/models"
	"PostcardAgent/pkg/cache"
	"PostcardAgent/pkg/logger"
	"PostcardAgent/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const characterKeyPrefix = "character:"

// Store gorm 持久化，角色查询带缓存
type Store struct {
	db       *gorm.DB
	cache    cache.Cache
	ttl      time.Duration
	metrics  *metrics.Metrics
	cacheTag string
}

// Option 可选配置
type Option func(*Store)

// WithCache 角色资料缓存，ttl<=0 使用缓存默认过期时间
func WithCache(c cache.Cache, cacheType string, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.cacheTag = cacheType
		s.ttl = ttl
	}
}

// WithMetrics 记录缓存命中
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB 底层连接
func (s *Store) DB() *gorm.DB { return s.db }

// AutoMigrate 建表（characters、postcards）
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Character{}, &models.Postcard{})
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CountCharacters 启动检查用
func (s *Store) CountCharacters(ctx context.Context) (int64, error) {
	return models.CountCharacters(s.db.WithContext(ctx))
}

// GetCharacter 查询角色资料，优先读缓存；不存在时返回 (nil, nil)
func (s *Store) GetCharacter(ctx context.Context, id uint) (*models.Character, error) {
	key := characterKey(id)
	if s.cache != nil {
		if c, ok := cache.GetJSON[models.Character](ctx, s.cache, key); ok {
			s.recordCache(true)
			return c, nil
		}
		s.recordCache(false)
	}

	c, err := models.GetCharacter(s.db.WithContext(ctx), id)
	if err != nil || c == nil {
		return c, err
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, c, s.ttl); err != nil {
			logger.Warn("cache character failed", zap.Uint("character_id", id), zap.Error(err))
		}
	}
	return c, nil
}

// GetVoiceProfile 直接读库，保证 voice_id 不会因为缓存过期数据而被重复训练
func (s *Store) GetVoiceProfile(ctx context.Context, characterID uint) (*models.CharacterVoiceProfile, error) {
	return models.GetCharacterVoiceProfile(s.db.WithContext(ctx), characterID)
}

func (s *Store) InsertPostcard(ctx context.Context, conversationID string, userID, characterID uint, kind models.PostcardKind, content string) (int64, error) {
	return models.InsertPostcard(s.db.WithContext(ctx), conversationID, userID, characterID, kind, content)
}

func (s *Store) UpdatePostcardVoice(ctx context.Context, conversationID string, voiceURL *string) (int64, error) {
	return models.UpdatePostcardVoice(s.db.WithContext(ctx), conversationID, voiceURL)
}

func (s *Store) UpdatePostcardStatus(ctx context.Context, conversationID string, status models.PostcardStatus) (int64, error) {
	return models.UpdatePostcardStatus(s.db.WithContext(ctx), conversationID, status)
}

// UpdateCharacterVoiceID 写入新训练的 voice_id，成功后清掉角色缓存
func (s *Store) UpdateCharacterVoiceID(ctx context.Context, characterID uint, voiceID string) (int64, error) {
	n, err := models.UpdateCharacterVoiceID(s.db.WithContext(ctx), characterID, voiceID)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.cache != nil {
		if err := s.cache.Delete(ctx, characterKey(characterID)); err != nil {
			logger.Warn("invalidate character cache failed", zap.Uint("character_id", characterID), zap.Error(err))
		}
	}
	return n, nil
}

// ListPostcards 查询会话下的明信片
func (s *Store) ListPostcards(ctx context.Context, conversationID string) ([]models.Postcard, error) {
	return models.ListPostcardsByConversation(s.db.WithContext(ctx), conversationID)
}

func (s *Store) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(s.cacheTag)
	} else {
		s.metrics.RecordCacheMiss(s.cacheTag)
	}
}

func characterKey(id uint) string {
	return fmt.Sprintf("%s%d", characterKeyPrefix, id)
}
