package models

import (
	stderrors "errors"
	"time"

	"gorm.io/gorm"
)

type Character struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Name         string         `json:"name" gorm:"size:100;not null"`
	Description  string         `json:"description" gorm:"type:text;not null"`
	UserRoleName string         `json:"user_role_name" gorm:"size:50"`
	UserRoleDesc string         `json:"user_role_desc" gorm:"size:200"`
	VoiceID      *string        `json:"voice_id" gorm:"size:128"`  // 已训练的语音模型
	VoiceURL     *string        `json:"voice_url" gorm:"size:255"` // 训练样本，只在没有 voice_id 时使用
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// GetCharacter 按ID查询未删除角色，不存在时返回 (nil, nil)
func GetCharacter(db *gorm.DB, id uint) (*Character, error) {
	var c Character
	err := db.Where("id = ?", id).First(&c).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCharacters 统计可用角色数量
func CountCharacters(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Character{}).Count(&n).Error
	return n, err
}
