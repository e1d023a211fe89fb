package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionAnswer records one adjudicated submission. The unique index over
// (session, user, question) is the double-submit backstop at the store level.
type SessionAnswer struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	SessionID   uint           `json:"session_id" gorm:"not null;uniqueIndex:idx_answer_once"`
	UserID      uint           `json:"user_id" gorm:"not null;uniqueIndex:idx_answer_once"`
	QuestionID  uint           `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_once"`
	AnswerIndex int            `json:"answer_index" gorm:"not null"`
	IsCorrect   bool           `json:"is_correct" gorm:"not null"`
	Points      int            `json:"points" gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
