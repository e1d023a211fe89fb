package models

import (
	"time"

	"gorm.io/gorm"
)

// GameHistory holds per-team answer counters for one question. Exactly one
// entry exists per question once at least one answer has been recorded.
type GameHistory struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	SessionID   uint           `json:"session_id" gorm:"not null;uniqueIndex:idx_session_question"`
	QuestionID  uint           `json:"question_id" gorm:"not null;uniqueIndex:idx_session_question"`
	Timestamp   time.Time      `json:"timestamp"`
	RedCorrect  int            `json:"red_correct" gorm:"not null;default:0"`
	RedTotal    int            `json:"red_total" gorm:"not null;default:0"`
	BlueCorrect int            `json:"blue_correct" gorm:"not null;default:0"`
	BlueTotal   int            `json:"blue_total" gorm:"not null;default:0"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// Record adds one answer to the counters of the given team.
func (h *GameHistory) Record(team string, correct bool) {
	if team == TeamRed {
		h.RedTotal++
		if correct {
			h.RedCorrect++
		}
	} else {
		h.BlueTotal++
		if correct {
			h.BlueCorrect++
		}
	}
}
