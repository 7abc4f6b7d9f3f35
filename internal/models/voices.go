package models

import (
	"time"

	"gorm.io/gorm"
)

// CharacterVoiceProfile 角色语音信息（characters 表子集）
type CharacterVoiceProfile struct {
	CharacterID uint    `gorm:"column:id"`
	VoiceID     *string `gorm:"column:voice_id"`
	VoiceURL    *string `gorm:"column:voice_url"`
}

// GetCharacterVoiceProfile 查询角色语音信息，角色不存在时返回空档案
func GetCharacterVoiceProfile(db *gorm.DB, characterID uint) (*CharacterVoiceProfile, error) {
	var p CharacterVoiceProfile
	result := db.Model(&Character{}).
		Select("id", "voice_id", "voice_url").
		Where("id = ?", characterID).
		Limit(1).
		Find(&p)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return &CharacterVoiceProfile{CharacterID: characterID}, nil
	}
	return &p, nil
}

// UpdateCharacterVoiceID 写入训练得到的语音模型，只在原来没有 voice_id 时生效
func UpdateCharacterVoiceID(db *gorm.DB, characterID uint, voiceID string) (int64, error) {
	result := db.Model(&Character{}).
		Where("id = ? AND (voice_id IS NULL OR voice_id = '')", characterID).
		Updates(map[string]interface{}{
			"voice_id":   voiceID,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}
