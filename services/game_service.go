package services

import (
	"context"
	"log"
	"sort"
	"time"

	"tugofwar/apperr"
	"tugofwar/models"
)

// GameService adjudicates answer submissions and serves live-state and
// leaderboard queries.
type GameService struct {
	store Store
	cache *LiveCache
	bc    Broadcaster
	locks *Locker
}

func NewGameService(store Store, cache *LiveCache, bc Broadcaster, locks *Locker) *GameService {
	return &GameService{
		store: store,
		cache: cache,
		bc:    bc,
		locks: locks,
	}
}

type SubmitAnswerRequest struct {
	QuestionID  uint `json:"question_id" binding:"required"`
	AnswerIndex *int `json:"answer_index" binding:"required"`
}

type SubmitAnswerResult struct {
	IsCorrect        bool   `json:"isCorrect"`
	Points           int    `json:"points"`
	Team             string `json:"team"`
	TeamScore        int    `json:"teamScore"`
	ParticipantScore int    `json:"participantScore"`
}

// SubmitAnswer scores one submission exactly once per participant per
// question. Everything is validated before any state changes; the store
// mutation is one transaction under the session's lock, and events go out
// only after it commits.
func (s *GameService) SubmitAnswer(ctx context.Context, sessionID, userID uint, req *SubmitAnswerRequest) (*SubmitAnswerResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Status != models.StatusStarted {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found or not active"))
	}

	participant := sess.ParticipantByUser(userID)
	if participant == nil || !participant.IsActive {
		return nil, apperr.New(apperr.CodeForbidden, apperr.ReasonNotAParticipant,
			apperr.WithMessagef("you are not an active participant in this session"))
	}

	question := sess.CurrentQuestion()
	if question == nil || question.ID != req.QuestionID {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonNotCurrentQuestion,
			apperr.WithMessagef("this question is not current"))
	}

	answerIndex := *req.AnswerIndex
	if answerIndex < 0 || answerIndex >= len(question.Options) {
		return nil, apperr.New(apperr.CodeValidation, apperr.ReasonValidation,
			apperr.WithMessagef("answer index out of range"))
	}

	answered, err := s.store.HasAnswered(ctx, sess.ID, userID, question.ID)
	if err != nil {
		return nil, err
	}
	if answered {
		return nil, apperr.New(apperr.CodeConflict, apperr.ReasonAlreadyAnswered,
			apperr.WithMessagef("already answered this question"))
	}

	isCorrect := answerIndex == question.CorrectAnswer
	points := 0
	if isCorrect {
		points = question.Points
	}

	participant.Score += points
	if isCorrect {
		participant.CorrectAnswers++
	}
	if participant.Team == models.TeamRed {
		sess.RedScore += points
	} else {
		sess.BlueScore += points
	}

	hist := sess.HistoryForQuestion(question.ID)
	if hist == nil {
		sess.History = append(sess.History, models.GameHistory{
			SessionID:  sess.ID,
			QuestionID: question.ID,
			Timestamp:  time.Now(),
		})
		hist = &sess.History[len(sess.History)-1]
	}
	hist.Record(participant.Team, isCorrect)

	answer := &models.SessionAnswer{
		SessionID:   sess.ID,
		UserID:      userID,
		QuestionID:  question.ID,
		AnswerIndex: answerIndex,
		IsCorrect:   isCorrect,
		Points:      points,
	}
	if err := s.store.ApplyAnswer(ctx, sess, participant, hist, answer); err != nil {
		return nil, err
	}

	s.cache.SetState(ctx, sess.Code, buildGameState(sess))
	if err := s.cache.UpdateLeaderboard(ctx, sess.ID, userID, participant.Score); err != nil {
		log.Printf("session %s: leaderboard update for user %d: %v", sess.Code, userID, err)
	}

	s.bc.BroadcastToSession(sess.Code, EventScoreUpdate, map[string]any{
		"scores":     Scores{Red: sess.RedScore, Blue: sess.BlueScore},
		"teamScores": teamTallies(sess),
	})
	s.bc.BroadcastToSession(sess.Code, EventAnswerResult, map[string]any{
		"userId":     userID,
		"questionId": question.ID,
		"isCorrect":  isCorrect,
		"points":     points,
		"team":       participant.Team,
	})

	teamScore := sess.RedScore
	if participant.Team == models.TeamBlue {
		teamScore = sess.BlueScore
	}
	return &SubmitAnswerResult{
		IsCorrect:        isCorrect,
		Points:           points,
		Team:             participant.Team,
		TeamScore:        teamScore,
		ParticipantScore: participant.Score,
	}, nil
}

// ParticipantSelf is the caller's own slice of the game state.
type ParticipantSelf struct {
	Team           string `json:"team"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
}

type GameStateResponse struct {
	Session     *GameState       `json:"session"`
	Participant *ParticipantSelf `json:"participant,omitempty"`
}

// GetGameState returns the full current snapshot for reconnect/catch-up. The
// durable store is authoritative; the live cache is refreshed on the way out.
func (s *GameService) GetGameState(ctx context.Context, sessionID, userID uint) (*GameStateResponse, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found"))
	}

	state := buildGameState(sess)
	s.cache.SetState(ctx, sess.Code, state)

	resp := &GameStateResponse{Session: state}
	if p := sess.ParticipantByUser(userID); p != nil {
		resp.Participant = &ParticipantSelf{
			Team:           p.Team,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
		}
	}
	return resp, nil
}

// LiveState serves the hub's state-sync requests: live cache first, store on
// a miss. Implements the hub's StateProvider.
func (s *GameService) LiveState(ctx context.Context, code string) (*GameState, error) {
	state := s.cache.GetState(ctx, code)
	if state == nil {
		sess, err := s.store.GetSessionByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
				apperr.WithMessagef("session not found"))
		}
		state = buildGameState(sess)
		s.cache.SetState(ctx, code, state)
	}

	if state.Settings.ShowLeaderboard {
		top, err := s.cache.TopScores(ctx, state.SessionID, 10)
		if err != nil {
			log.Printf("session %s: live leaderboard: %v", code, err)
		} else {
			state.Leaderboard = top
		}
	}
	return state, nil
}

type LeaderboardEntry struct {
	UserID         uint   `json:"userId"`
	Name           string `json:"name"`
	Team           string `json:"team"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// GetLeaderboard lists active participants by score descending. The sort is
// stable over join order, so equal scores rank in the order players joined.
func (s *GameService) GetLeaderboard(ctx context.Context, sessionID uint) ([]LeaderboardEntry, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.New(apperr.CodeNotFound, apperr.ReasonSessionNotFound,
			apperr.WithMessagef("session not found"))
	}

	entries := make([]LeaderboardEntry, 0, len(sess.Participants))
	for i := range sess.Participants {
		p := &sess.Participants[i]
		if !p.IsActive {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			UserID:         p.UserID,
			Name:           p.User.Name,
			Team:           p.Team,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries, nil
}
