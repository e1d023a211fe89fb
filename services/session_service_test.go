package services

import (
	"context"
	"testing"

	"tugofwar/apperr"
	"tugofwar/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	ctx := context.Background()

	sess, err := env.sessions.CreateSession(ctx, teacher.ID, &CreateSessionRequest{
		Name:      "Fractions review",
		Subject:   "math",
		Grade:     5,
		Questions: threeQuestions(),
	})
	require.NoError(t, err)

	assert.Len(t, sess.Code, 6)
	assert.Equal(t, models.StatusDraft, sess.Status)
	assert.Equal(t, teacher.ID, sess.TeacherID)
	assert.Len(t, sess.Questions, 3)
	assert.Nil(t, sess.CurrentQuestionID)

	// Defaults fill in when settings are omitted.
	assert.Equal(t, 20, sess.Settings.TimePerQuestion)
	assert.Equal(t, 50, sess.Settings.MaxPlayers)
	assert.Equal(t, models.TeamAssignAuto, sess.Settings.TeamAssignment)
	assert.True(t, sess.Settings.AllowRejoin)
}

func TestCreateSessionStudentForbidden(t *testing.T) {
	env := newTestEnv(t)
	student := env.createStudent(t, "sam")

	_, err := env.sessions.CreateSession(context.Background(), student.ID, &CreateSessionRequest{
		Name:      "Fractions review",
		Subject:   "math",
		Questions: threeQuestions(),
	})
	assert.True(t, apperr.Is(err, apperr.ReasonForbidden))
}

func TestCreateSessionBadCorrectIndex(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")

	questions := threeQuestions()
	questions[1].CorrectAnswer = 3 // only 3 options, max index is 2

	_, err := env.sessions.CreateSession(context.Background(), teacher.ID, &CreateSessionRequest{
		Name:      "Fractions review",
		Subject:   "math",
		Questions: questions,
	})
	assert.True(t, apperr.Is(err, apperr.ReasonValidation))
}

func TestStartSession(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	ctx := context.Background()

	sess := env.createWaitingSession(t, teacher.ID)
	sess, err := env.sessions.StartSession(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusStarted, sess.Status)
	require.NotNil(t, sess.StartTime)
	require.NotNil(t, sess.CurrentQuestionID)
	assert.Equal(t, sess.Questions[0].ID, *sess.CurrentQuestionID)

	assert.Equal(t, []string{EventSessionStarted, EventQuestionUpdate}, env.bc.eventTypes())
	evt, ok := env.bc.last(EventQuestionUpdate)
	require.True(t, ok)
	payload := evt.Payload.(map[string]any)
	assert.Equal(t, 1, payload["questionNumber"])
	assert.Equal(t, 3, payload["totalQuestions"])
}

func TestCreateSessionTooFewQuestions(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")

	_, err := env.sessions.CreateSession(context.Background(), teacher.ID, &CreateSessionRequest{
		Name:      "Too short",
		Subject:   "math",
		Questions: threeQuestions()[:2],
	})
	assert.True(t, apperr.Is(err, apperr.ReasonValidation))
}

func TestStartSessionTooFewQuestions(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	ctx := context.Background()

	sess := env.createWaitingSession(t, teacher.ID)
	// Simulate a session whose questions were removed out of band.
	sess.Questions = sess.Questions[:2]

	_, err := env.sessions.StartSession(ctx, sess.ID, teacher.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonValidation))
}

func TestStartSessionWrongOwner(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	other := env.createTeacher(t, "mr-okafor")

	sess := env.createWaitingSession(t, teacher.ID)
	_, err := env.sessions.StartSession(context.Background(), sess.ID, other.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonSessionNotFound))
}

func TestAdvanceQuestion(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	ctx := context.Background()

	sess := env.startedSession(t, teacher.ID)

	result, err := env.sessions.AdvanceQuestion(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.QuestionNumber)
	assert.Equal(t, 3, result.TotalQuestions)
	assert.Equal(t, sess.Questions[1].ID, result.Question.ID)
	assert.Equal(t, sess.Questions[1].ID, *sess.CurrentQuestionID)

	result, err = env.sessions.AdvanceQuestion(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.QuestionNumber)

	_, err = env.sessions.AdvanceQuestion(ctx, sess.ID, teacher.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonNoMoreQuestions))
	assert.Equal(t, sess.Questions[2].ID, *sess.CurrentQuestionID, "pointer stays on last question")
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	student := env.createStudent(t, "sam")
	ctx := context.Background()

	sess := env.startedSession(t, teacher.ID, student.ID)

	paused, err := env.sessions.PauseSession(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, paused.Status)

	// Paused sessions accept no answers.
	_, err = env.games.SubmitAnswer(ctx, sess.ID, student.ID, &SubmitAnswerRequest{
		QuestionID:  *sess.CurrentQuestionID,
		AnswerIndex: intPtr(0),
	})
	assert.True(t, apperr.Is(err, apperr.ReasonSessionNotFound))

	// Advancing is also refused while paused.
	_, err = env.sessions.AdvanceQuestion(ctx, sess.ID, teacher.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonStateConflict))

	resumed, err := env.sessions.ResumeSession(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, resumed.Status)
	assert.Equal(t, sess.Questions[0].ID, *resumed.CurrentQuestionID, "resume keeps the question")

	_, err = env.sessions.ResumeSession(ctx, sess.ID, teacher.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonStateConflict), "resume of a running session")
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	red := env.createStudent(t, "ruth")
	blue := env.createStudent(t, "ben")
	ctx := context.Background()

	sess := env.startedSession(t, teacher.ID, red.ID, blue.ID)

	// Only the red player scores on question one (worth 1 point).
	_, err := env.games.SubmitAnswer(ctx, sess.ID, red.ID, &SubmitAnswerRequest{
		QuestionID:  *sess.CurrentQuestionID,
		AnswerIndex: intPtr(0),
	})
	require.NoError(t, err)

	result, err := env.sessions.EndSession(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TeamRed, result.Winner)
	assert.Equal(t, Scores{Red: 1, Blue: 0}, result.Scores)
	require.NotNil(t, result.EndTime)
	assert.Equal(t, models.StatusEnded, sess.Status)

	evt, ok := env.bc.last(EventSessionEnded)
	require.True(t, ok)
	assert.Equal(t, models.TeamRed, evt.Payload.(map[string]any)["winner"])

	// Stats fold in exactly once: games, questions, correct answers, mean
	// score and a win for the winning team only.
	ruth, _ := env.store.GetUserByID(ctx, red.ID)
	assert.Equal(t, 1, ruth.Stats.TotalGames)
	assert.Equal(t, 3, ruth.Stats.TotalQuestions)
	assert.Equal(t, 1, ruth.Stats.CorrectAnswers)
	assert.Equal(t, 1.0, ruth.Stats.AverageScore)
	assert.Equal(t, 1, ruth.Stats.Wins)

	ben, _ := env.store.GetUserByID(ctx, blue.ID)
	assert.Equal(t, 1, ben.Stats.TotalGames)
	assert.Equal(t, 0, ben.Stats.Wins)
	assert.Equal(t, 0.0, ben.Stats.AverageScore)
}

func TestEndSessionIdempotencyGuard(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	student := env.createStudent(t, "sam")
	ctx := context.Background()

	sess := env.startedSession(t, teacher.ID, student.ID)

	_, err := env.sessions.EndSession(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)

	// A retried end must not double-count stats.
	_, err = env.sessions.EndSession(ctx, sess.ID, teacher.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonStateConflict))

	sam, _ := env.store.GetUserByID(ctx, student.ID)
	assert.Equal(t, 1, sam.Stats.TotalGames)
}

func TestEndSessionDraw(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	student := env.createStudent(t, "sam")
	ctx := context.Background()

	sess := env.startedSession(t, teacher.ID, student.ID)

	result, err := env.sessions.EndSession(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, "draw", result.Winner)

	sam, _ := env.store.GetUserByID(ctx, student.ID)
	assert.Equal(t, 0, sam.Stats.Wins, "no wins on a draw")
}

func TestJoinSessionAutoAssignment(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	ctx := context.Background()

	sess := env.createWaitingSession(t, teacher.ID)

	want := []string{models.TeamRed, models.TeamBlue, models.TeamRed, models.TeamBlue}
	for i, team := range want {
		student := env.createStudent(t, string(rune('a'+i))+"-student")
		result, err := env.sessions.JoinSession(ctx, sess.Code, student.ID)
		require.NoError(t, err)
		assert.Equal(t, team, result.Team, "join %d", i+1)
		assert.False(t, result.Rejoined)
	}

	evt, ok := env.bc.last(EventParticipantJoined)
	require.True(t, ok)
	assert.Equal(t, 4, evt.Payload.(map[string]any)["totalParticipants"])
}

func TestJoinSessionNotJoinable(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	student := env.createStudent(t, "sam")
	ctx := context.Background()

	sess, err := env.sessions.CreateSession(ctx, teacher.ID, &CreateSessionRequest{
		Name:      "Fractions review",
		Subject:   "math",
		Questions: threeQuestions(),
	})
	require.NoError(t, err)

	// Draft sessions are not open yet.
	_, err = env.sessions.JoinSession(ctx, sess.Code, student.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonSessionNotJoinable))

	_, err = env.sessions.JoinSession(ctx, "NOSUCH", student.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonSessionNotFound))
}

func TestJoinSessionCapacity(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	ctx := context.Background()

	sess, err := env.sessions.CreateSession(ctx, teacher.ID, &CreateSessionRequest{
		Name:      "Tiny game",
		Subject:   "math",
		Settings:  SettingsRequest{MaxPlayers: 2},
		Questions: threeQuestions(),
	})
	require.NoError(t, err)
	_, err = env.sessions.OpenLobby(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		student := env.createStudent(t, string(rune('a'+i))+"-student")
		_, err := env.sessions.JoinSession(ctx, sess.Code, student.ID)
		require.NoError(t, err)
	}

	late := env.createStudent(t, "late")
	_, err = env.sessions.JoinSession(ctx, sess.Code, late.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonSessionFull))
}

func TestRejoinKeepsTeam(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	student := env.createStudent(t, "sam")
	ctx := context.Background()

	sess := env.createWaitingSession(t, teacher.ID)

	first, err := env.sessions.JoinSession(ctx, sess.Code, student.ID)
	require.NoError(t, err)

	require.NoError(t, env.sessions.LeaveSession(ctx, sess.ID, student.ID))
	assert.False(t, sess.ParticipantByUser(student.ID).IsActive)

	again, err := env.sessions.JoinSession(ctx, sess.Code, student.ID)
	require.NoError(t, err)
	assert.True(t, again.Rejoined)
	assert.Equal(t, first.Team, again.Team)
	assert.True(t, sess.ParticipantByUser(student.ID).IsActive)
}

func TestRejoinDisabled(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	student := env.createStudent(t, "sam")
	ctx := context.Background()

	allowRejoin := false
	sess, err := env.sessions.CreateSession(ctx, teacher.ID, &CreateSessionRequest{
		Name:      "No rejoin",
		Subject:   "math",
		Settings:  SettingsRequest{AllowRejoin: &allowRejoin},
		Questions: threeQuestions(),
	})
	require.NoError(t, err)
	_, err = env.sessions.OpenLobby(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)

	_, err = env.sessions.JoinSession(ctx, sess.Code, student.ID)
	require.NoError(t, err)
	require.NoError(t, env.sessions.LeaveSession(ctx, sess.ID, student.ID))

	_, err = env.sessions.JoinSession(ctx, sess.Code, student.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonSessionNotJoinable))
}

func TestLeaveEndedSession(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	student := env.createStudent(t, "sam")
	ctx := context.Background()

	sess := env.startedSession(t, teacher.ID, student.ID)
	_, err := env.sessions.EndSession(ctx, sess.ID, teacher.ID)
	require.NoError(t, err)
	env.bc.reset()

	// Ended is terminal: the participant record stays untouched and nothing
	// goes out on the channel.
	err = env.sessions.LeaveSession(ctx, sess.ID, student.ID)
	assert.True(t, apperr.Is(err, apperr.ReasonStateConflict))
	assert.True(t, sess.ParticipantByUser(student.ID).IsActive)
	assert.Empty(t, env.bc.eventTypes())
}

func TestListByTeacher(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.createTeacher(t, "ms-rivera")
	other := env.createTeacher(t, "mr-okafor")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.createWaitingSession(t, teacher.ID)
	}
	env.createWaitingSession(t, other.ID)

	sessions, total, err := env.sessions.ListByTeacher(ctx, teacher.ID, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, sessions, 2)

	sessions, total, err = env.sessions.ListByTeacher(ctx, teacher.ID, models.StatusEnded, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, sessions)
}

func intPtr(i int) *int { return &i }
