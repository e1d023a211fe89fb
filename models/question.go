package models

import (
	"time"

	"gorm.io/gorm"
)

type Question struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	SessionID     uint           `json:"session_id" gorm:"not null;index"`
	Text          string         `json:"text" gorm:"not null"`
	CorrectAnswer int            `json:"correct_answer" gorm:"not null"` // index into Options
	Points        int            `json:"points" gorm:"not null;default:1"` // 1-5
	Explanation   string         `json:"explanation"`
	Order         int            `json:"order" gorm:"not null"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Options []AnswerOption `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}

type AnswerOption struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	QuestionID uint           `json:"question_id" gorm:"not null;index"`
	Idx        int            `json:"idx" gorm:"not null"`
	Text       string         `json:"text" gorm:"not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}
