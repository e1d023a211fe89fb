package services

import (
	"context"
	"errors"

	"tugofwar/apperr"
	"tugofwar/models"

	"gorm.io/gorm"
)

// Store is the durable-store boundary of the game core. All lookups return
// (nil, nil) when the record does not exist; mutating methods that span
// several records run in a single transaction.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	SaveUserStats(ctx context.Context, user *models.User) error

	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uint) (*models.Session, error)
	GetSessionByCode(ctx context.Context, code string) (*models.Session, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListSessionsByTeacher(ctx context.Context, teacherID uint, status string, page, limit int) ([]models.Session, int64, error)
	SaveSession(ctx context.Context, session *models.Session) error
	CreateParticipant(ctx context.Context, p *models.Participant) error
	SaveParticipant(ctx context.Context, p *models.Participant) error

	HasAnswered(ctx context.Context, sessionID, userID, questionID uint) (bool, error)
	// ApplyAnswer persists one adjudicated submission atomically: the answer
	// record, the participant's counters, the session's team aggregates and
	// the question's history entry all commit together or not at all.
	ApplyAnswer(ctx context.Context, session *models.Session, p *models.Participant, hist *models.GameHistory, ans *models.SessionAnswer) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.New(apperr.CodeConflict, apperr.ReasonEmailTaken,
			apperr.WithMessagef("email already registered"))
	}
	return err
}

func (s *gormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) SaveUserStats(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"stats_total_games":     user.Stats.TotalGames,
		"stats_total_questions": user.Stats.TotalQuestions,
		"stats_correct_answers": user.Stats.CorrectAnswers,
		"stats_average_score":   user.Stats.AverageScore,
		"stats_wins":            user.Stats.Wins,
	}).Error
}

// CreateSession persists the session together with its questions and options.
func (s *gormStore) CreateSession(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *gormStore) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	var session models.Session
	err := s.preloaded(ctx).First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *gormStore) GetSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	var session models.Session
	err := s.preloaded(ctx).Where("code = ?", code).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *gormStore) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(`questions."order"`)
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_options.idx")
		}).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("participants.joined_at")
		}).
		Preload("Participants.User").
		Preload("History")
}

func (s *gormStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Session{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (s *gormStore) ListSessionsByTeacher(ctx context.Context, teacherID uint, status string, page, limit int) ([]models.Session, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Session{}).Where("teacher_id = ?", teacherID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []models.Session
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}

// SaveSession writes the session's own columns, never its associations.
func (s *gormStore) SaveSession(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Model(session).Updates(map[string]any{
		"status":              session.Status,
		"current_question_id": session.CurrentQuestionID,
		"red_score":           session.RedScore,
		"blue_score":          session.BlueScore,
		"start_time":          session.StartTime,
		"end_time":            session.EndTime,
	}).Error
}

func (s *gormStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *gormStore) SaveParticipant(ctx context.Context, p *models.Participant) error {
	return s.db.WithContext(ctx).Model(p).Updates(map[string]any{
		"score":           p.Score,
		"correct_answers": p.CorrectAnswers,
		"is_active":       p.IsActive,
	}).Error
}

func (s *gormStore) HasAnswered(ctx context.Context, sessionID, userID, questionID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.SessionAnswer{}).
		Where("session_id = ? AND user_id = ? AND question_id = ?", sessionID, userID, questionID).
		Count(&count).Error
	return count > 0, err
}

func (s *gormStore) ApplyAnswer(ctx context.Context, session *models.Session, p *models.Participant, hist *models.GameHistory, ans *models.SessionAnswer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ans).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.New(apperr.CodeConflict, apperr.ReasonAlreadyAnswered,
					apperr.WithMessagef("already answered this question"))
			}
			return err
		}

		if err := tx.Model(&models.Participant{}).Where("id = ?", p.ID).Updates(map[string]any{
			"score":           p.Score,
			"correct_answers": p.CorrectAnswers,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Session{}).Where("id = ?", session.ID).Updates(map[string]any{
			"red_score":  session.RedScore,
			"blue_score": session.BlueScore,
		}).Error; err != nil {
			return err
		}

		if hist.ID == 0 {
			return tx.Create(hist).Error
		}
		return tx.Model(hist).Updates(map[string]any{
			"red_correct":  hist.RedCorrect,
			"red_total":    hist.RedTotal,
			"blue_correct": hist.BlueCorrect,
			"blue_total":   hist.BlueTotal,
		}).Error
	})
}
