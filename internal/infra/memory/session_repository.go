package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

type answerKey struct {
	sessionID  string
	questionID string
}

// SessionRepository is an in-memory implementation of app.SessionRepository.
// The answers map keyed by (session, question) is the uniqueness constraint;
// all mutation happens under the write lock, so duplicate submissions lose
// the race and get domain.ErrAnswerExists just like the Postgres constraint.
type SessionRepository struct {
	mu       sync.RWMutex
	clock    func() time.Time
	sessions map[string]domain.GameSession
	answers  map[answerKey]domain.Answer
}

func NewSessionRepository() *SessionRepository {
	return NewSessionRepositoryWithClock(time.Now)
}

// NewSessionRepositoryWithClock allows deterministic timestamps in tests.
func NewSessionRepositoryWithClock(clock func() time.Time) *SessionRepository {
	return &SessionRepository{
		clock:    clock,
		sessions: make(map[string]domain.GameSession),
		answers:  make(map[answerKey]domain.Answer),
	}
}

func (r *SessionRepository) CreateSession(_ context.Context, userID, moduleID string) (domain.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	session := domain.GameSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		ModuleID:  moduleID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.sessions[session.ID] = session
	return session, nil
}

func (r *SessionRepository) UpdateSession(_ context.Context, id string, upd app.SessionUpdate) (domain.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if upd.Score != nil {
		session.Score = *upd.Score
	}
	if upd.CorrectAnswers != nil {
		session.CorrectAnswers = *upd.CorrectAnswers
	}
	if upd.TotalAnswered != nil {
		session.TotalAnswered = *upd.TotalAnswered
	}
	if upd.Streak != nil {
		session.Streak = *upd.Streak
	}
	if upd.MaxStreak != nil {
		session.MaxStreak = *upd.MaxStreak
	}
	if upd.Nota != nil {
		nota := *upd.Nota
		session.Nota = &nota
	}
	if upd.Finished != nil {
		session.Finished = *upd.Finished
	}
	if upd.IsBest != nil {
		session.IsBest = *upd.IsBest
	}
	if upd.FinishedAt != nil {
		finishedAt := *upd.FinishedAt
		session.FinishedAt = &finishedAt
	}
	session.UpdatedAt = r.clock()
	r.sessions[id] = session
	return session, nil
}

func (r *SessionRepository) FindSessionByID(_ context.Context, id string) (domain.GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *SessionRepository) FindSessionWithAnswers(_ context.Context, id string) (domain.GameSession, []string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.GameSession{}, nil, domain.ErrSessionNotFound
	}
	return session, r.answeredLocked(id), nil
}

func (r *SessionRepository) FindUnfinishedSession(_ context.Context, userID, moduleID string) (domain.GameSession, []string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, session := range r.sessions {
		if session.UserID == userID && session.ModuleID == moduleID && !session.Finished {
			return session, r.answeredLocked(session.ID), true, nil
		}
	}
	return domain.GameSession{}, nil, false, nil
}

func (r *SessionRepository) FindBestSession(_ context.Context, userID, moduleID string) (domain.GameSession, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, session := range r.sessions {
		if session.UserID == userID && session.ModuleID == moduleID && session.Finished && session.IsBest {
			return session, true, nil
		}
	}
	return domain.GameSession{}, false, nil
}

func (r *SessionRepository) FindFinishedSessions(_ context.Context, userID, moduleID string) ([]domain.GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]domain.GameSession, 0)
	for _, session := range r.sessions {
		if session.UserID == userID && session.ModuleID == moduleID && session.Finished {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

func (r *SessionRepository) ClearBestFlag(_ context.Context, userID, moduleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.UserID == userID && session.ModuleID == moduleID && session.IsBest {
			session.IsBest = false
			session.UpdatedAt = r.clock()
			r.sessions[id] = session
		}
	}
	return nil
}

func (r *SessionRepository) FindBestSessionsForUser(_ context.Context, userID string) ([]domain.GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]domain.GameSession, 0)
	for _, session := range r.sessions {
		if session.UserID == userID && session.Finished && session.IsBest {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ModuleID < sessions[j].ModuleID })
	return sessions, nil
}

func (r *SessionRepository) CreateAnswer(_ context.Context, answer domain.Answer) (domain.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey{sessionID: answer.SessionID, questionID: answer.QuestionID}
	if _, ok := r.answers[key]; ok {
		return domain.Answer{}, domain.ErrAnswerExists
	}
	answer.ID = uuid.NewString()
	answer.CreatedAt = r.clock()
	r.answers[key] = answer
	return answer, nil
}

// AnswerCount reports how many answers exist for a session; test helper.
func (r *SessionRepository) AnswerCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.answeredLocked(sessionID))
}

func (r *SessionRepository) answeredLocked(sessionID string) []string {
	answered := make([]string, 0)
	for key := range r.answers {
		if key.sessionID == sessionID {
			answered = append(answered, key.questionID)
		}
	}
	sort.Strings(answered)
	return answered
}
