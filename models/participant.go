package models

import (
	"time"

	"gorm.io/gorm"
)

type Participant struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	SessionID      uint           `json:"session_id" gorm:"not null;uniqueIndex:idx_session_user"`
	UserID         uint           `json:"user_id" gorm:"not null;uniqueIndex:idx_session_user"`
	Team           string         `json:"team" gorm:"not null"` // red or blue, never reassigned
	JoinedAt       time.Time      `json:"joined_at"`
	Score          int            `json:"score" gorm:"not null;default:0"`
	CorrectAnswers int            `json:"correct_answers" gorm:"not null;default:0"`
	IsActive       bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User User `json:"user,omitempty"`
}
