package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// UserStats accumulates results across finished games. Updated exactly once
// per session when it ends.
type UserStats struct {
	TotalGames     int     `json:"total_games" gorm:"not null;default:0"`
	TotalQuestions int     `json:"total_questions" gorm:"not null;default:0"`
	CorrectAnswers int     `json:"correct_answers" gorm:"not null;default:0"`
	AverageScore   float64 `json:"average_score" gorm:"not null;default:0"`
	Wins           int     `json:"wins" gorm:"not null;default:0"`
}

type User struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Email        string         `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string         `json:"-" gorm:"not null"`
	Name         string         `json:"name" gorm:"not null"`
	Role         string         `json:"role" gorm:"not null;default:'student'"` // student, teacher, admin
	Stats        UserStats      `json:"stats" gorm:"embedded;embeddedPrefix:stats_"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher || u.Role == RoleAdmin
}
