package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"tugofwar/apperr"
	"tugofwar/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store. Records are shared by pointer, so a
// service mutation followed by Save is immediately visible to later reads,
// which matches the read-committed behavior the services rely on under the
// session lock.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uint]*models.User
	sessions map[uint]*models.Session
	answers  map[string]bool
	nextID   uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uint]*models.User),
		sessions: make(map[uint]*models.Session),
		answers:  make(map[string]bool),
	}
}

func (f *fakeStore) id() uint {
	f.nextID++
	return f.nextID
}

func answerKey(sessionID, userID, questionID uint) string {
	return fmt.Sprintf("%d/%d/%d", sessionID, userID, questionID)
}

func (f *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperr.New(apperr.CodeConflict, apperr.ReasonEmailTaken,
				apperr.WithMessagef("email already registered"))
		}
	}
	user.ID = f.id()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeStore) SaveUserStats(ctx context.Context, user *models.User) error {
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session.ID = f.id()
	for i := range session.Questions {
		q := &session.Questions[i]
		q.ID = f.id()
		q.SessionID = session.ID
		for j := range q.Options {
			q.Options[j].ID = f.id()
			q.Options[j].QuestionID = q.ID
		}
	}
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], nil
}

func (f *fakeStore) GetSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Code == code {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s, _ := f.GetSessionByCode(ctx, code)
	return s != nil, nil
}

func (f *fakeStore) ListSessionsByTeacher(ctx context.Context, teacherID uint, status string, page, limit int) ([]models.Session, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.TeacherID != teacherID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))

	start := (page - 1) * limit
	if start >= len(out) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (f *fakeStore) SaveSession(ctx context.Context, session *models.Session) error {
	return nil
}

func (f *fakeStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id()
	if u, ok := f.users[p.UserID]; ok {
		p.User = *u
	}
	return nil
}

func (f *fakeStore) SaveParticipant(ctx context.Context, p *models.Participant) error {
	return nil
}

func (f *fakeStore) HasAnswered(ctx context.Context, sessionID, userID, questionID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers[answerKey(sessionID, userID, questionID)], nil
}

func (f *fakeStore) ApplyAnswer(ctx context.Context, session *models.Session, p *models.Participant, hist *models.GameHistory, ans *models.SessionAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := answerKey(ans.SessionID, ans.UserID, ans.QuestionID)
	if f.answers[key] {
		return apperr.New(apperr.CodeConflict, apperr.ReasonAlreadyAnswered,
			apperr.WithMessagef("already answered this question"))
	}
	f.answers[key] = true
	ans.ID = f.id()
	if hist.ID == 0 {
		hist.ID = f.id()
	}
	return nil
}

// recorderBroadcaster captures every emitted event in order.
type recorderBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Code    string
	Event   string
	Payload any
}

func (r *recorderBroadcaster) BroadcastToSession(code string, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Code: code, Event: event, Payload: payload})
}

func (r *recorderBroadcaster) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Event)
	}
	return types
}

func (r *recorderBroadcaster) last(event string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Event == event {
			return r.events[i], true
		}
	}
	return recordedEvent{}, false
}

func (r *recorderBroadcaster) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type testEnv struct {
	store    *fakeStore
	bc       *recorderBroadcaster
	cache    *LiveCache
	sessions *SessionService
	games    *GameService
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := NewLiveCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	store := newFakeStore()
	bc := &recorderBroadcaster{}
	locks := NewLocker()

	return &testEnv{
		store:    store,
		bc:       bc,
		cache:    cache,
		sessions: NewSessionService(store, cache, bc, locks),
		games:    NewGameService(store, cache, bc, locks),
		auth:     NewAuthService(store, "test-secret"),
	}
}

func (e *testEnv) createUser(t *testing.T, name, role string) *models.User {
	t.Helper()
	user := &models.User{
		Email: fmt.Sprintf("%s@example.com", name),
		Name:  name,
		Role:  role,
	}
	require.NoError(t, user.SetPassword("password123"))
	require.NoError(t, e.store.CreateUser(context.Background(), user))
	return user
}

func (e *testEnv) createTeacher(t *testing.T, name string) *models.User {
	return e.createUser(t, name, models.RoleTeacher)
}

func (e *testEnv) createStudent(t *testing.T, name string) *models.User {
	return e.createUser(t, name, models.RoleStudent)
}

// threeQuestions builds a minimal valid question set. Each question is worth
// its 1-based number in points and option 0 is always correct.
func threeQuestions() []CreateQuestionRequest {
	qs := make([]CreateQuestionRequest, 3)
	for i := range qs {
		qs[i] = CreateQuestionRequest{
			Text:          fmt.Sprintf("question %d", i+1),
			Answers:       []string{"right", "wrong", "also wrong"},
			CorrectAnswer: 0,
			Points:        i + 1,
		}
	}
	return qs
}

// createWaitingSession creates a session for the teacher and opens the lobby.
func (e *testEnv) createWaitingSession(t *testing.T, teacherID uint) *models.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := e.sessions.CreateSession(ctx, teacherID, &CreateSessionRequest{
		Name:      "Fractions review",
		Subject:   "math",
		Grade:     5,
		Questions: threeQuestions(),
	})
	require.NoError(t, err)

	sess, err = e.sessions.OpenLobby(ctx, sess.ID, teacherID)
	require.NoError(t, err)
	return sess
}

// startedSession creates a session, joins the given students and starts it.
// With auto assignment students land alternately on red, blue, red, ...
func (e *testEnv) startedSession(t *testing.T, teacherID uint, studentIDs ...uint) *models.Session {
	t.Helper()
	ctx := context.Background()

	sess := e.createWaitingSession(t, teacherID)
	for _, id := range studentIDs {
		_, err := e.sessions.JoinSession(ctx, sess.Code, id)
		require.NoError(t, err)
	}

	sess, err := e.sessions.StartSession(ctx, sess.ID, teacherID)
	require.NoError(t, err)
	e.bc.reset()
	return sess
}
