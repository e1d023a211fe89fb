package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"tugofwar/apperr"
	"tugofwar/models"

	"github.com/google/uuid"
)

// SessionService owns the session lifecycle: creation, the state machine
// (draft -> waiting -> started -> paused/ended) and participant joining.
type SessionService struct {
	store Store
	cache *LiveCache
	bc    Broadcaster
	locks *Locker
}

func NewSessionService(store Store, cache *LiveCache, bc Broadcaster, locks *Locker) *SessionService {
	return &SessionService{
		store: store,
		cache: cache,
		bc:    bc,
		locks: locks,
	}
}

type CreateSessionRequest struct {
	Name      string                  `json:"name" binding:"required"`
	Subject   string                  `json:"subject" binding:"required"`
	Grade     int                     `json:"grade" binding:"omitempty,min=1,max=12"`
	Settings  SettingsRequest         `json:"settings"`
	Questions []CreateQuestionRequest `json:"questions" binding:"required,min=3,dive"`
}

type SettingsRequest struct {
	TimePerQuestion int    `json:"time_per_question" binding:"omitempty,min=5,max=60"`
	MaxPlayers      int    `json:"max_players" binding:"omitempty,min=2,max=100"`
	TeamAssignment  string `json:"team_assignment" binding:"omitempty,oneof=auto random manual"`
	ShowLeaderboard *bool  `json:"show_leaderboard"`
	AllowRejoin     *bool  `json:"allow_rejoin"`
}

type CreateQuestionRequest struct {
	Text          string   `json:"text" binding:"required"`
	Answers       []string `json:"answers" binding:"required,min=2,max=4"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Points        int      `json:"points" binding:"omitempty,min=1,max=5"`
}

// CreateSession validates the question set, generates a unique join code and
// persists the session in draft. Only teachers may create sessions.
func (s *SessionService) CreateSession(ctx context.Context, teacherID uint, req *CreateSessionRequest) (*models.Session, error) {
	teacher, err := s.store.GetUserByID(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if teacher == nil || !teacher.IsTeacher() {
		return nil, apperr.New(apperr.CodeForbidden, apperr.ReasonForbidden,
			apperr.WithMessagef("only teachers can create sessions"))
	}

	if len(req.Questions) < 3 {
		return nil, apperr.New(apperr.CodeValidation, apperr.ReasonValidation,
			apperr.WithMessagef("session needs at least 3 questions"))
	}
	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		Code:      code,
		Name:      strings.TrimSpace(req.Name),
		Subject:   req.Subject,
		Grade:     req.Grade,
		TeacherID: teacherID,
		Status:    models.StatusDraft,
		Settings:  buildSettings(req.Settings),
		Questions: questions,
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("session %s created by teacher %d with %d questions", session.Code, teacherID, len(questions))
	return session, nil
}

func buildQuestions(reqs []CreateQuestionRequest) ([]models.Question, error) {
	questions := make([]models.Question, 0, len(reqs))
	for i, qr := range reqs {
		text := strings.TrimSpace(qr.Text)
		if text == "" {
			return nil, apperr.New(apperr.CodeValidation, apperr.ReasonValidation,
				apperr.WithMessagef("question %d: text is required", i+1))
		}
		if qr.CorrectAnswer < 0 || qr.CorrectAnswer >= len(qr.Answers) {
			return nil, apperr.New(apperr.CodeValidation, apperr.ReasonValidation,
				apperr.WithMessagef("question %d: correct answer index out of range", i+1))
		}

		points := qr.Points
		if points == 0 {
			points = 1
		}

		options := make([]models.AnswerOption, 0, len(qr.Answers))
		for idx, text := range qr.Answers {
			text = strings.TrimSpace(text)
			if text == "" {
				return nil, apperr.New(apperr.CodeValidation, apperr.ReasonValidation,
					apperr.WithMessagef("question %d: answer %d is empty", i+1, idx+1))
			}
			options = append(options, models.AnswerOption{Idx: idx, Text: text})
		}

		questions = append(questions, models.Question{
			Text:          text,
			CorrectAnswer: qr.CorrectAnswer,
			Points:        points,
			Explanation:   qr.Explanation,
			Order:         i,
			Options:       options,
		})
	}
	return questions, nil
}

func buildSettings(req SettingsRequest) models.SessionSettings {
	settings := models.SessionSettings{
		TimePerQuestion: 20,
		MaxPlayers:      50,
		TeamAssignment:  models.TeamAssignAuto,
		ShowLeaderboard: true,
		AllowRejoin:     true,
	}
	if req.TimePerQuestion != 0 {
		settings.TimePerQuestion = req.TimePerQuestion
	}
	if req.MaxPlayers != 0 {
		settings.MaxPlayers = req.MaxPlayers
	}
	if req.TeamAssignment != "" {
		settings.TeamAssignment = req.TeamAssignment
	}
	if req.ShowLeaderboard != nil {
		settings.ShowLeaderboard = *req.ShowLeaderboard
	}
	if req.AllowRejoin != nil {
		settings.AllowRejoin = *req.AllowRejoin
	}
	return settings
}

// generateCode draws 6-char codes until one is unused. The code is immutable
// for the session's entire life.
func (s *SessionService) generateCode(ctx context.Context) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		code := strings.ToUpper(uuid.NewString()[:6])
		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique session code")
}

// OpenLobby moves a draft session to waiting so students can join.
func (s *SessionService) OpenLobby(ctx context.Context, sessionID, requesterID uint) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.ownedSession(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusDraft {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonStateConflict,
			apperr.WithMessagef("session is not in draft"))
	}

	sess.Status = models.StatusWaiting
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.cache.DeleteState(ctx, sess.Code)
	return sess, nil
}

// StartSession begins the game: first question becomes current, start time is
// set exactly once, and both session-started and the first question-update go
// out on the channel.
func (s *SessionService) StartSession(ctx context.Context, sessionID, requesterID uint) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.ownedSession(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusDraft && sess.Status != models.StatusWaiting {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonStateConflict,
			apperr.WithMessagef("session is not startable from status %q", sess.Status))
	}
	if len(sess.Questions) < 3 {
		return nil, apperr.New(apperr.CodeValidation, apperr.ReasonValidation,
			apperr.WithMessagef("session must have at least 3 questions"))
	}

	now := time.Now()
	sess.Status = models.StatusStarted
	if sess.StartTime == nil {
		sess.StartTime = &now
	}
	sess.CurrentQuestionID = &sess.Questions[0].ID

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.cache.SetState(ctx, sess.Code, buildGameState(sess))

	s.bc.BroadcastToSession(sess.Code, EventSessionStarted, map[string]any{
		"sessionId":      sess.ID,
		"startTime":      sess.StartTime,
		"totalQuestions": len(sess.Questions),
	})
	s.bc.BroadcastToSession(sess.Code, EventQuestionUpdate, map[string]any{
		"question":       newQuestionView(&sess.Questions[0], sess.Settings.TimePerQuestion),
		"questionNumber": 1,
		"totalQuestions": len(sess.Questions),
	})

	log.Printf("session %s started with %d questions", sess.Code, len(sess.Questions))
	return sess, nil
}

type AdvanceResult struct {
	Question       *QuestionView `json:"question"`
	QuestionNumber int           `json:"questionNumber"`
	TotalQuestions int           `json:"totalQuestions"`
}

// AdvanceQuestion moves the pointer to the next question in order. Advancing
// past the last question is refused; the teacher ends the session explicitly.
func (s *SessionService) AdvanceQuestion(ctx context.Context, sessionID, requesterID uint) (*AdvanceResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.ownedSession(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusStarted {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonStateConflict,
			apperr.WithMessagef("session is not running"))
	}

	idx := sess.CurrentQuestionIndex()
	if idx < 0 || idx >= len(sess.Questions)-1 {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonNoMoreQuestions,
			apperr.WithMessagef("no more questions"))
	}

	next := &sess.Questions[idx+1]
	sess.CurrentQuestionID = &next.ID
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.cache.SetState(ctx, sess.Code, buildGameState(sess))

	result := &AdvanceResult{
		Question:       newQuestionView(next, sess.Settings.TimePerQuestion),
		QuestionNumber: idx + 2,
		TotalQuestions: len(sess.Questions),
	}
	s.bc.BroadcastToSession(sess.Code, EventQuestionUpdate, map[string]any{
		"question":       result.Question,
		"questionNumber": result.QuestionNumber,
		"totalQuestions": result.TotalQuestions,
	})

	return result, nil
}

// PauseSession suspends a running game.
func (s *SessionService) PauseSession(ctx context.Context, sessionID, requesterID uint) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.ownedSession(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusStarted {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonStateConflict,
			apperr.WithMessagef("session is not running"))
	}

	sess.Status = models.StatusPaused
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.cache.SetState(ctx, sess.Code, buildGameState(sess))
	s.bc.BroadcastToSession(sess.Code, EventSessionPaused, map[string]any{
		"sessionId": sess.ID,
	})
	return sess, nil
}

// ResumeSession continues a paused game on the same question.
func (s *SessionService) ResumeSession(ctx context.Context, sessionID, requesterID uint) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.ownedSession(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusPaused {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonStateConflict,
			apperr.WithMessagef("session is not paused"))
	}

	sess.Status = models.StatusStarted
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.cache.SetState(ctx, sess.Code, buildGameState(sess))
	s.bc.BroadcastToSession(sess.Code, EventSessionResumed, map[string]any{
		"sessionId": sess.ID,
	})
	return sess, nil
}

type EndResult struct {
	Scores  Scores     `json:"scores"`
	Winner  string     `json:"winner"`
	EndTime *time.Time `json:"endTime"`
}

// EndSession closes the game, decides the winner and folds each participant's
// results into their user stats. The status guard (only started or paused may
// end) is what keeps the stats propagation from double-counting on a retried
// request.
func (s *SessionService) EndSession(ctx context.Context, sessionID, requesterID uint) (*EndResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.ownedSession(ctx, sessionID, requesterID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusStarted && sess.Status != models.StatusPaused {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonStateConflict,
			apperr.WithMessagef("session is not running"))
	}

	now := time.Now()
	sess.Status = models.StatusEnded
	if sess.EndTime == nil {
		sess.EndTime = &now
	}
	winner := sess.Winner()

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	s.propagateStats(ctx, sess, winner)

	s.cache.DeleteState(ctx, sess.Code)
	s.cache.ClearLeaderboard(ctx, sess.ID)
	s.locks.Forget(sess.ID)

	s.bc.BroadcastToSession(sess.Code, EventSessionEnded, map[string]any{
		"sessionId": sess.ID,
		"endTime":   sess.EndTime,
		"scores":    Scores{Red: sess.RedScore, Blue: sess.BlueScore},
		"winner":    winner,
	})

	log.Printf("session %s ended: red=%d blue=%d winner=%s", sess.Code, sess.RedScore, sess.BlueScore, winner)
	return &EndResult{
		Scores:  Scores{Red: sess.RedScore, Blue: sess.BlueScore},
		Winner:  winner,
		EndTime: sess.EndTime,
	}, nil
}

// propagateStats folds one finished game into each participant's aggregate
// user stats: games, questions, correct answers, running-mean score and wins
// for the winning team (no wins on a draw). Failures on individual users are
// logged, not fatal; the session is already ended.
func (s *SessionService) propagateStats(ctx context.Context, sess *models.Session, winner string) {
	for i := range sess.Participants {
		p := &sess.Participants[i]
		user, err := s.store.GetUserByID(ctx, p.UserID)
		if err != nil || user == nil {
			log.Printf("session %s: stats for user %d skipped: %v", sess.Code, p.UserID, err)
			continue
		}

		st := &user.Stats
		st.TotalGames++
		st.TotalQuestions += len(sess.Questions)
		st.CorrectAnswers += p.CorrectAnswers
		st.AverageScore = (st.AverageScore*float64(st.TotalGames-1) + float64(p.Score)) / float64(st.TotalGames)
		if winner != "draw" && p.Team == winner {
			st.Wins++
		}

		if err := s.store.SaveUserStats(ctx, user); err != nil {
			log.Printf("session %s: save stats for user %d: %v", sess.Code, p.UserID, err)
		}
	}
}

type JoinResult struct {
	Team     string          `json:"team"`
	Rejoined bool            `json:"rejoined"`
	Session  *models.Session `json:"session"`
}

// JoinSession adds the user to the session found by code, or reactivates a
// previous membership. Rejoining members keep their original team and do not
// count against the player cap a second time.
func (s *SessionService) JoinSession(ctx context.Context, code string, userID uint) (*JoinResult, error) {
	sess, err := s.store.GetSessionByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found"))
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	// Re-read under the lock so two concurrent joins see each other.
	sess, err = s.store.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found"))
	}
	if sess.Status != models.StatusWaiting && sess.Status != models.StatusStarted {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonSessionNotJoinable,
			apperr.WithMessagef("session is not joinable in status %q", sess.Status))
	}

	if existing := sess.ParticipantByUser(userID); existing != nil {
		if existing.IsActive {
			return &JoinResult{Team: existing.Team, Rejoined: true, Session: sess}, nil
		}
		if !sess.Settings.AllowRejoin {
			return nil, apperr.New(apperr.CodeConflict, apperr.ReasonSessionNotJoinable,
				apperr.WithMessagef("rejoining is disabled for this session"))
		}
		existing.IsActive = true
		if err := s.store.SaveParticipant(ctx, existing); err != nil {
			return nil, err
		}
		return &JoinResult{Team: existing.Team, Rejoined: true, Session: sess}, nil
	}

	if len(sess.Participants) >= sess.Settings.MaxPlayers {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonSessionFull,
			apperr.WithMessagef("session is full"))
	}

	participant := &models.Participant{
		SessionID: sess.ID,
		UserID:    userID,
		Team:      assignTeam(sess),
		JoinedAt:  time.Now(),
		IsActive:  true,
	}
	if err := s.store.CreateParticipant(ctx, participant); err != nil {
		return nil, err
	}
	sess.Participants = append(sess.Participants, *participant)
	s.cache.SetState(ctx, sess.Code, buildGameState(sess))

	s.bc.BroadcastToSession(sess.Code, EventParticipantJoined, map[string]any{
		"userId":            userID,
		"team":              participant.Team,
		"totalParticipants": len(sess.Participants),
	})

	return &JoinResult{Team: participant.Team, Session: sess}, nil
}

// LeaveSession marks the participant inactive. Their team and score survive
// for a later rejoin.
func (s *SessionService) LeaveSession(ctx context.Context, sessionID, userID uint) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found"))
	}
	// Ended sessions are terminal; draft sessions have no participants yet.
	if sess.Status == models.StatusEnded || sess.Status == models.StatusDraft {
		return apperr.New(apperr.CodeConflict, apperr.ReasonStateConflict,
			apperr.WithMessagef("session is not leavable in status %q", sess.Status))
	}

	p := sess.ParticipantByUser(userID)
	if p == nil {
		return apperr.New(apperr.CodeForbidden, apperr.ReasonNotAParticipant,
			apperr.WithMessagef("not a participant in this session"))
	}
	if !p.IsActive {
		return nil
	}

	p.IsActive = false
	if err := s.store.SaveParticipant(ctx, p); err != nil {
		return err
	}
	s.cache.SetState(ctx, sess.Code, buildGameState(sess))

	s.bc.BroadcastToSession(sess.Code, EventParticipantLeft, map[string]any{
		"userId": userID,
		"team":   p.Team,
	})
	return nil
}

func (s *SessionService) ListByTeacher(ctx context.Context, teacherID uint, status string, page, limit int) ([]models.Session, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.store.ListSessionsByTeacher(ctx, teacherID, status, page, limit)
}

func (s *SessionService) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	sess, err := s.store.GetSessionByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found"))
	}
	return sess, nil
}

// ownedSession loads a session and checks the requester is its teacher.
// Unknown id and foreign owner are indistinguishable to the caller.
func (s *SessionService) ownedSession(ctx context.Context, sessionID, requesterID uint) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.TeacherID != requesterID {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found or not authorized"))
	}
	return sess, nil
}
