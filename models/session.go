package models

import (
	"time"

	"gorm.io/gorm"
)

// Session lifecycle states.
const (
	StatusDraft   = "draft"
	StatusWaiting = "waiting"
	StatusStarted = "started"
	StatusPaused  = "paused"
	StatusEnded   = "ended"
)

const (
	TeamRed  = "red"
	TeamBlue = "blue"
)

const (
	TeamAssignAuto   = "auto"
	TeamAssignRandom = "random"
	TeamAssignManual = "manual"
)

// SessionSettings is the teacher-chosen configuration, fixed at creation.
type SessionSettings struct {
	TimePerQuestion int    `json:"time_per_question" gorm:"not null;default:20"` // seconds, 5-60
	MaxPlayers      int    `json:"max_players" gorm:"not null;default:50"`       // 2-100
	TeamAssignment  string `json:"team_assignment" gorm:"not null;default:'auto'"`
	ShowLeaderboard bool   `json:"show_leaderboard" gorm:"not null;default:true"`
	AllowRejoin     bool   `json:"allow_rejoin" gorm:"not null;default:true"`
}

type Session struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	Code              string          `json:"code" gorm:"uniqueIndex;not null"` // 6-char join code, immutable
	Name              string          `json:"name" gorm:"not null"`
	Subject           string          `json:"subject" gorm:"not null"`
	Grade             int             `json:"grade"`
	TeacherID         uint            `json:"teacher_id" gorm:"not null;index"`
	Status            string          `json:"status" gorm:"not null;default:'draft';index"`
	Settings          SessionSettings `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`
	CurrentQuestionID *uint           `json:"current_question_id"`
	RedScore          int             `json:"red_score" gorm:"not null;default:0"`
	BlueScore         int             `json:"blue_score" gorm:"not null;default:0"`
	StartTime         *time.Time      `json:"start_time"`
	EndTime           *time.Time      `json:"end_time"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relationships
	Teacher      User          `json:"teacher,omitempty"`
	Questions    []Question    `json:"questions,omitempty" gorm:"foreignKey:SessionID"`
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:SessionID"`
	History      []GameHistory `json:"history,omitempty" gorm:"foreignKey:SessionID"`
}

// CurrentQuestion returns the question CurrentQuestionID points at, or nil.
// Questions must already be loaded.
func (s *Session) CurrentQuestion() *Question {
	if s.CurrentQuestionID == nil {
		return nil
	}
	for i := range s.Questions {
		if s.Questions[i].ID == *s.CurrentQuestionID {
			return &s.Questions[i]
		}
	}
	return nil
}

// CurrentQuestionIndex returns the zero-based index of the current question,
// or -1 when no question is active.
func (s *Session) CurrentQuestionIndex() int {
	if s.CurrentQuestionID == nil {
		return -1
	}
	for i := range s.Questions {
		if s.Questions[i].ID == *s.CurrentQuestionID {
			return i
		}
	}
	return -1
}

// ParticipantByUser returns the participant entry for a user, or nil. A user
// appears at most once per session.
func (s *Session) ParticipantByUser(userID uint) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// TeamCounts returns the number of participants on each team, active or not.
func (s *Session) TeamCounts() (red, blue int) {
	for i := range s.Participants {
		if s.Participants[i].Team == TeamRed {
			red++
		} else {
			blue++
		}
	}
	return red, blue
}

// HistoryForQuestion returns the history entry for a question, or nil when no
// answer has been recorded for it yet.
func (s *Session) HistoryForQuestion(questionID uint) *GameHistory {
	for i := range s.History {
		if s.History[i].QuestionID == questionID {
			return &s.History[i]
		}
	}
	return nil
}

// Winner returns "red", "blue" or "draw" based on the aggregate team scores.
func (s *Session) Winner() string {
	switch {
	case s.RedScore > s.BlueScore:
		return TeamRed
	case s.BlueScore > s.RedScore:
		return TeamBlue
	default:
		return "draw"
	}
}
