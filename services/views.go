package services

import (
	"time"

	"tugofwar/models"
)

// QuestionView is the question as participants see it while the game is
// running. The correct index and explanation are intentionally omitted.
type QuestionView struct {
	ID        uint     `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	Points    int      `json:"points"`
	TimeLimit int      `json:"timeLimit"`
	Order     int      `json:"order"`
}

type Scores struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

type TeamMember struct {
	UserID   uint   `json:"userId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	IsActive bool   `json:"isActive"`
}

type TeamView struct {
	Score        int          `json:"score"`
	Participants []TeamMember `json:"participants"`
}

type TeamsView struct {
	Red  TeamView `json:"red"`
	Blue TeamView `json:"blue"`
}

// TeamTally is the per-team section of the score-update event: aggregate
// score plus participant headcount.
type TeamTally struct {
	Score        int `json:"score"`
	Participants int `json:"participants"`
}

type TeamTallies struct {
	Red  TeamTally `json:"red"`
	Blue TeamTally `json:"blue"`
}

// GameState is the session-wide live snapshot cached in Redis and served to
// reconnecting clients.
type GameState struct {
	SessionID       uint                   `json:"sessionId"`
	Code            string                 `json:"code"`
	Name            string                 `json:"name"`
	Status          string                 `json:"status"`
	CurrentQuestion *QuestionView          `json:"currentQuestion,omitempty"`
	QuestionNumber  int                    `json:"questionNumber"` // 1-based, 0 when none active
	TotalQuestions  int                    `json:"totalQuestions"`
	Scores          Scores                 `json:"scores"`
	Teams           TeamsView              `json:"teams"`
	StartTime       *time.Time             `json:"startTime,omitempty"`
	Settings        models.SessionSettings `json:"settings"`

	// Leaderboard is attached from the Redis ZSET when the snapshot is
	// served, never stored with the cached state.
	Leaderboard []LiveScore `json:"leaderboard,omitempty"`
}

func newQuestionView(q *models.Question, timeLimit int) *QuestionView {
	opts := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, o.Text)
	}
	return &QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		Options:   opts,
		Points:    q.Points,
		TimeLimit: timeLimit,
		Order:     q.Order,
	}
}

// buildGameState projects the session aggregate into the live snapshot.
// Participants and questions must be loaded.
func buildGameState(sess *models.Session) *GameState {
	state := &GameState{
		SessionID:      sess.ID,
		Code:           sess.Code,
		Name:           sess.Name,
		Status:         sess.Status,
		TotalQuestions: len(sess.Questions),
		Scores:         Scores{Red: sess.RedScore, Blue: sess.BlueScore},
		StartTime:      sess.StartTime,
		Settings:       sess.Settings,
		Teams: TeamsView{
			Red:  TeamView{Score: sess.RedScore, Participants: []TeamMember{}},
			Blue: TeamView{Score: sess.BlueScore, Participants: []TeamMember{}},
		},
	}

	if q := sess.CurrentQuestion(); q != nil {
		state.CurrentQuestion = newQuestionView(q, sess.Settings.TimePerQuestion)
		state.QuestionNumber = sess.CurrentQuestionIndex() + 1
	}

	for i := range sess.Participants {
		p := &sess.Participants[i]
		member := TeamMember{
			UserID:   p.UserID,
			Name:     p.User.Name,
			Score:    p.Score,
			IsActive: p.IsActive,
		}
		if p.Team == models.TeamRed {
			state.Teams.Red.Participants = append(state.Teams.Red.Participants, member)
		} else {
			state.Teams.Blue.Participants = append(state.Teams.Blue.Participants, member)
		}
	}

	return state
}

func teamTallies(sess *models.Session) TeamTallies {
	red, blue := sess.TeamCounts()
	return TeamTallies{
		Red:  TeamTally{Score: sess.RedScore, Participants: red},
		Blue: TeamTally{Score: sess.BlueScore, Participants: blue},
	}
}
