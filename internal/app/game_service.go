package app

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

// ContentRepository loads modules and questions (from cache/backing store).
// Content is read-only from the game's perspective.
type ContentRepository interface {
	FindModuleByID(ctx context.Context, id string) (domain.Module, error)
	FindActiveModulesOrdered(ctx context.Context) ([]domain.Module, error)
	FindActiveQuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error)
	FindQuestionByID(ctx context.Context, id string) (domain.Question, error)
}

// SessionUpdate is a partial update of a game session; nil fields are left
// untouched.
type SessionUpdate struct {
	Score          *int
	CorrectAnswers *int
	TotalAnswered  *int
	Streak         *int
	MaxStreak      *int
	Nota           *float64
	Finished       *bool
	IsBest         *bool
	FinishedAt     *time.Time
}

// SessionRepository is the durable store for game sessions and answers.
// CreateAnswer must enforce uniqueness of (session, question) atomically and
// return domain.ErrAnswerExists on violation; the controller's pre-check is
// not race-free on its own.
type SessionRepository interface {
	CreateSession(ctx context.Context, userID, moduleID string) (domain.GameSession, error)
	UpdateSession(ctx context.Context, id string, upd SessionUpdate) (domain.GameSession, error)
	FindSessionByID(ctx context.Context, id string) (domain.GameSession, error)
	FindSessionWithAnswers(ctx context.Context, id string) (domain.GameSession, []string, error)
	FindUnfinishedSession(ctx context.Context, userID, moduleID string) (domain.GameSession, []string, bool, error)
	FindBestSession(ctx context.Context, userID, moduleID string) (domain.GameSession, bool, error)
	FindFinishedSessions(ctx context.Context, userID, moduleID string) ([]domain.GameSession, error)
	ClearBestFlag(ctx context.Context, userID, moduleID string) error
	FindBestSessionsForUser(ctx context.Context, userID string) ([]domain.GameSession, error)
	CreateAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error)
}

// GameService contains the game-session use cases: start, submit answer,
// finish.
type GameService struct {
	content  ContentRepository
	sessions SessionRepository
	now      func() time.Time

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

func NewGameService(content ContentRepository, sessions SessionRepository) *GameService {
	return NewGameServiceWithRand(content, sessions, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

// NewGameServiceWithRand allows deterministic shuffling and timestamps in tests.
func NewGameServiceWithRand(content ContentRepository, sessions SessionRepository, rnd *rand.Rand, now func() time.Time) *GameService {
	return &GameService{content: content, sessions: sessions, rnd: rnd, now: now}
}

// StartResult is the payload returned when a session is started or resumed.
type StartResult struct {
	Session   domain.GameSession    `json:"session"`
	Questions []domain.SafeQuestion `json:"questions"`
	Resumed   bool                  `json:"resumed"`
}

// SubmitInput carries one answer submission. SelectedOption of -1 records a
// timeout.
type SubmitInput struct {
	SessionID      string
	UserID         string
	QuestionID     string
	SelectedOption int
	TimeSpent      int
}

// SubmitResult reveals the outcome of one answer; the correct option and
// explanation are disclosed only here.
type SubmitResult struct {
	IsCorrect     bool   `json:"isCorrect"`
	CorrectOption int    `json:"correctOption"`
	Explanation   string `json:"explanation"`
	Points        int    `json:"points"`
	Streak        int    `json:"streak"`
	Score         int    `json:"score"`
}

// FinishResult is the finished session plus the overall grade when the
// terminal module was just completed.
type FinishResult struct {
	Session     domain.GameSession `json:"session"`
	OverallNota *float64           `json:"overallNota,omitempty"`
}

const (
	causeStartSession  = "START_SESSION_ERROR"
	causeSubmitAnswer  = "SUBMIT_ANSWER_ERROR"
	causeFinishSession = "FINISH_SESSION_ERROR"
)

// Start begins a new session for (user, module), or resumes the unfinished
// one when it still has unanswered questions. An exhausted unfinished session
// is finalized before a fresh one is created.
func (s *GameService) Start(ctx context.Context, userID, moduleID string) (StartResult, error) {
	res, err := s.start(ctx, userID, moduleID)
	if err != nil {
		return StartResult{}, coerce(err, causeStartSession)
	}
	return res, nil
}

func (s *GameService) start(ctx context.Context, userID, moduleID string) (StartResult, error) {
	module, err := s.content.FindModuleByID(ctx, moduleID)
	if err != nil {
		return StartResult{}, err
	}
	if !module.Active {
		return StartResult{}, domain.ErrModuleInactive
	}

	if err := s.checkProgression(ctx, userID, module); err != nil {
		return StartResult{}, err
	}

	questions, err := s.content.FindActiveQuestionsByModule(ctx, moduleID)
	if err != nil {
		return StartResult{}, err
	}

	existing, answered, ok, err := s.sessions.FindUnfinishedSession(ctx, userID, moduleID)
	if err != nil {
		return StartResult{}, err
	}
	if ok {
		remaining := remainingQuestions(questions, answered)
		if len(remaining) > 0 {
			return StartResult{Session: existing, Questions: s.shuffle(remaining), Resumed: true}, nil
		}
		// Stale session with nothing left to answer: close it out before
		// opening a new attempt. The progression gate was already passed.
		if _, err := s.finalize(ctx, existing); err != nil {
			return StartResult{}, err
		}
	}

	session, err := s.sessions.CreateSession(ctx, userID, moduleID)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{Session: session, Questions: s.shuffle(questions), Resumed: false}, nil
}

// checkProgression enforces the gate: module N requires a finished session on
// the active module ordered N-1. Order 1 is always startable.
func (s *GameService) checkProgression(ctx context.Context, userID string, module domain.Module) error {
	if module.Order <= 1 {
		return nil
	}
	modules, err := s.content.FindActiveModulesOrdered(ctx)
	if err != nil {
		return err
	}
	for _, prev := range modules {
		if prev.Order != module.Order-1 {
			continue
		}
		finished, err := s.sessions.FindFinishedSessions(ctx, userID, prev.ID)
		if err != nil {
			return err
		}
		if len(finished) == 0 {
			return domain.ErrPreviousModuleNotCompleted
		}
		return nil
	}
	// No active module sits at order-1; nothing to gate on.
	return nil
}

// SubmitAnswer records one immutable answer and advances the session
// counters. A question can only be answered once per session.
func (s *GameService) SubmitAnswer(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	res, err := s.submitAnswer(ctx, in)
	if err != nil {
		return SubmitResult{}, coerce(err, causeSubmitAnswer)
	}
	return res, nil
}

func (s *GameService) submitAnswer(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	session, answered, err := s.sessions.FindSessionWithAnswers(ctx, in.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if session.UserID != in.UserID {
		return SubmitResult{}, domain.ErrSessionForbidden
	}
	if session.Finished {
		return SubmitResult{}, domain.ErrSessionFinished
	}

	question, err := s.content.FindQuestionByID(ctx, in.QuestionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if question.ModuleID != session.ModuleID {
		return SubmitResult{}, domain.ErrQuestionModuleMismatch
	}

	for _, id := range answered {
		if id == in.QuestionID {
			return SubmitResult{}, domain.ErrAnswerExists
		}
	}

	isCorrect := in.SelectedOption == question.Correct
	streak := 0
	if isCorrect {
		streak = session.Streak + 1
	}
	points := ComputePoints(isCorrect, streak)

	// The store's uniqueness constraint is the real idempotency boundary;
	// a concurrent duplicate surfaces as ErrAnswerExists here.
	if _, err := s.sessions.CreateAnswer(ctx, domain.Answer{
		SessionID:      in.SessionID,
		QuestionID:     in.QuestionID,
		SelectedOption: in.SelectedOption,
		IsCorrect:      isCorrect,
		Points:         points,
		TimeSpent:      in.TimeSpent,
	}); err != nil {
		return SubmitResult{}, err
	}

	totalAnswered := session.TotalAnswered + 1
	correctAnswers := session.CorrectAnswers
	if isCorrect {
		correctAnswers++
	}
	maxStreak := session.MaxStreak
	if streak > maxStreak {
		maxStreak = streak
	}
	score := session.Score + points

	updated, err := s.sessions.UpdateSession(ctx, session.ID, SessionUpdate{
		Score:          &score,
		CorrectAnswers: &correctAnswers,
		TotalAnswered:  &totalAnswered,
		Streak:         &streak,
		MaxStreak:      &maxStreak,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	return SubmitResult{
		IsCorrect:     isCorrect,
		CorrectOption: question.Correct,
		Explanation:   question.Explanation,
		Points:        points,
		Streak:        updated.Streak,
		Score:         updated.Score,
	}, nil
}

// Finish grades the session against the module's current active question
// count, resolves the best attempt for (user, module), and, on the terminal
// module, attaches the overall grade.
func (s *GameService) Finish(ctx context.Context, sessionID, userID string) (FinishResult, error) {
	res, err := s.finish(ctx, sessionID, userID)
	if err != nil {
		return FinishResult{}, coerce(err, causeFinishSession)
	}
	return res, nil
}

func (s *GameService) finish(ctx context.Context, sessionID, userID string) (FinishResult, error) {
	session, err := s.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		return FinishResult{}, err
	}
	if session.UserID != userID {
		return FinishResult{}, domain.ErrSessionForbidden
	}
	if session.Finished {
		return FinishResult{}, domain.ErrSessionFinished
	}

	finished, err := s.finalize(ctx, session)
	if err != nil {
		return FinishResult{}, err
	}

	result := FinishResult{Session: finished}
	// The overall grade is best-effort enrichment: a collaborator fault here
	// must not fail an otherwise successful finish.
	if overall, ok := s.overallNota(ctx, finished); ok {
		result.OverallNota = &overall
	}
	return result, nil
}

// finalize grades an unfinished session and marks it terminal, resolving the
// best-attempt flag. Best rule: highest nota wins, ties go to the newest
// finish; the previous best's flag is cleared in the same operation.
func (s *GameService) finalize(ctx context.Context, session domain.GameSession) (domain.GameSession, error) {
	questions, err := s.content.FindActiveQuestionsByModule(ctx, session.ModuleID)
	if err != nil {
		return domain.GameSession{}, err
	}
	nota := ComputeNota(session.CorrectAnswers, len(questions))

	best, hasBest, err := s.sessions.FindBestSession(ctx, session.UserID, session.ModuleID)
	if err != nil {
		return domain.GameSession{}, err
	}
	isBest := true
	if hasBest {
		bestNota := 0.0
		if best.Nota != nil {
			bestNota = *best.Nota
		}
		isBest = nota >= bestNota
	}
	if isBest && hasBest {
		if err := s.sessions.ClearBestFlag(ctx, session.UserID, session.ModuleID); err != nil {
			return domain.GameSession{}, err
		}
	}

	now := s.now()
	finished := true
	return s.sessions.UpdateSession(ctx, session.ID, SessionUpdate{
		Nota:       &nota,
		Finished:   &finished,
		IsBest:     &isBest,
		FinishedAt: &now,
	})
}

// overallNota computes the cross-module grade when the finished session's
// module has the highest order among active modules. Failures are swallowed.
func (s *GameService) overallNota(ctx context.Context, session domain.GameSession) (float64, bool) {
	module, err := s.content.FindModuleByID(ctx, session.ModuleID)
	if err != nil {
		log.Printf("overall nota skipped: %v", err)
		return 0, false
	}
	modules, err := s.content.FindActiveModulesOrdered(ctx)
	if err != nil || len(modules) == 0 {
		if err != nil {
			log.Printf("overall nota skipped: %v", err)
		}
		return 0, false
	}
	if module.Order != modules[len(modules)-1].Order {
		return 0, false
	}

	bestSessions, err := s.sessions.FindBestSessionsForUser(ctx, session.UserID)
	if err != nil {
		log.Printf("overall nota skipped: %v", err)
		return 0, false
	}
	totalCorrect := 0
	for _, b := range bestSessions {
		totalCorrect += b.CorrectAnswers
	}
	return ComputeOverallNota(totalCorrect, len(modules), QuestionsPerModule), true
}

// shuffle strips questions to their safe view in a fresh random order.
func (s *GameService) shuffle(questions []domain.Question) []domain.SafeQuestion {
	safe := make([]domain.SafeQuestion, len(questions))
	for i, q := range questions {
		safe[i] = q.Safe()
	}
	s.mu.Lock()
	s.rnd.Shuffle(len(safe), func(i, j int) {
		safe[i], safe[j] = safe[j], safe[i]
	})
	s.mu.Unlock()
	return safe
}

func remainingQuestions(questions []domain.Question, answered []string) []domain.Question {
	done := make(map[string]struct{}, len(answered))
	for _, id := range answered {
		done[id] = struct{}{}
	}
	remaining := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := done[q.ID]; !ok {
			remaining = append(remaining, q)
		}
	}
	return remaining
}

// coerce passes domain errors through untouched and wraps anything else as
// an internal error with the operation's cause code.
func coerce(err error, cause string) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return domain.Internal(cause, err)
}
