package models

import (
	"time"

	"gorm.io/gorm"
)

type PostcardKind string

const (
	PostcardKindUser PostcardKind = "user"
	PostcardKindAI   PostcardKind = "ai"
)

type PostcardStatus string

const (
	PostcardStatusSent      PostcardStatus = "sent"
	PostcardStatusDelivered PostcardStatus = "delivered"
)

type Postcard struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"size:36;not null;index"`
	UserID         uint           `json:"user_id" gorm:"not null;index"`
	CharacterID    uint           `json:"character_id" gorm:"not null;index"`
	Kind           PostcardKind   `json:"type" gorm:"column:type;size:16;not null;default:user"` // user / ai
	Content        string         `json:"content" gorm:"type:text;not null"`
	Status         PostcardStatus `json:"status" gorm:"size:16;not null;default:sent"` // sent -> delivered，不回退
	VoiceURL       *string        `json:"voice_url" gorm:"size:255"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

// InsertPostcard 新增一条明信片记录，始终插入不做 upsert
func InsertPostcard(db *gorm.DB, conversationID string, userID, characterID uint, kind PostcardKind, content string) (int64, error) {
	now := time.Now()
	card := &Postcard{
		ConversationID: conversationID,
		UserID:         userID,
		CharacterID:    characterID,
		Kind:           kind,
		Content:        content,
		Status:         PostcardStatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	result := db.Create(card)
	return result.RowsAffected, result.Error
}

// UpdatePostcardVoice 按会话ID更新 AI 明信片的语音地址，可能影响0行
func UpdatePostcardVoice(db *gorm.DB, conversationID string, voiceURL *string) (int64, error) {
	result := db.Model(&Postcard{}).
		Where("conversation_id = ? AND type = ?", conversationID, PostcardKindAI).
		Updates(map[string]interface{}{
			"voice_url":  voiceURL,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// UpdatePostcardStatus 单调更新会话内所有明信片的状态，已经是目标状态的记录不会被再次修改
func UpdatePostcardStatus(db *gorm.DB, conversationID string, status PostcardStatus) (int64, error) {
	result := db.Model(&Postcard{}).
		Where("conversation_id = ? AND status <> ?", conversationID, status).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// ListPostcardsByConversation 查询会话下的明信片
func ListPostcardsByConversation(db *gorm.DB, conversationID string) ([]Postcard, error) {
	var cards []Postcard
	err := db.Where("conversation_id = ?", conversationID).Order("id").Find(&cards).Error
	return cards, err
}
