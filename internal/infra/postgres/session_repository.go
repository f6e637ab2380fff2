package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

const pgUniqueViolation = "23505"

const sessionColumns = `id, user_id, module_id, score, correct_answers, total_answered,
	streak, max_streak, nota, finished, is_best, finished_at, created_at, updated_at`

// SessionRepository persists game sessions and answers in Postgres. The
// UNIQUE (session_id, question_id) constraint on answers is the race-proof
// duplicate-answer boundary; violations map to domain.ErrAnswerExists.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) CreateSession(ctx context.Context, userID, moduleID string) (domain.GameSession, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO game_sessions (id, user_id, module_id)
		VALUES ($1, $2, $3)
		RETURNING `+sessionColumns, uuid.NewString(), userID, moduleID)
	session, err := scanSession(row)
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) UpdateSession(ctx context.Context, id string, upd app.SessionUpdate) (domain.GameSession, error) {
	set := "updated_at=now()"
	args := []interface{}{id}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set += fmt.Sprintf(", %s=$%d", column, len(args))
	}
	if upd.Score != nil {
		add("score", *upd.Score)
	}
	if upd.CorrectAnswers != nil {
		add("correct_answers", *upd.CorrectAnswers)
	}
	if upd.TotalAnswered != nil {
		add("total_answered", *upd.TotalAnswered)
	}
	if upd.Streak != nil {
		add("streak", *upd.Streak)
	}
	if upd.MaxStreak != nil {
		add("max_streak", *upd.MaxStreak)
	}
	if upd.Nota != nil {
		add("nota", *upd.Nota)
	}
	if upd.Finished != nil {
		add("finished", *upd.Finished)
	}
	if upd.IsBest != nil {
		add("is_best", *upd.IsBest)
	}
	if upd.FinishedAt != nil {
		add("finished_at", *upd.FinishedAt)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE game_sessions SET `+set+` WHERE id=$1
		RETURNING `+sessionColumns, args...)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) FindSessionByID(ctx context.Context, id string) (domain.GameSession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM game_sessions WHERE id=$1`, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("find session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) FindSessionWithAnswers(ctx context.Context, id string) (domain.GameSession, []string, error) {
	session, err := r.FindSessionByID(ctx, id)
	if err != nil {
		return domain.GameSession{}, nil, err
	}
	answered, err := r.answeredQuestionIDs(ctx, id)
	if err != nil {
		return domain.GameSession{}, nil, err
	}
	return session, answered, nil
}

func (r *SessionRepository) FindUnfinishedSession(ctx context.Context, userID, moduleID string) (domain.GameSession, []string, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM game_sessions
		WHERE user_id=$1 AND module_id=$2 AND NOT finished
		ORDER BY created_at DESC LIMIT 1`, userID, moduleID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameSession{}, nil, false, nil
	}
	if err != nil {
		return domain.GameSession{}, nil, false, fmt.Errorf("find unfinished session: %w", err)
	}
	answered, err := r.answeredQuestionIDs(ctx, session.ID)
	if err != nil {
		return domain.GameSession{}, nil, false, err
	}
	return session, answered, true, nil
}

func (r *SessionRepository) FindBestSession(ctx context.Context, userID, moduleID string) (domain.GameSession, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM game_sessions
		WHERE user_id=$1 AND module_id=$2 AND finished AND is_best
		LIMIT 1`, userID, moduleID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameSession{}, false, nil
	}
	if err != nil {
		return domain.GameSession{}, false, fmt.Errorf("find best session: %w", err)
	}
	return session, true, nil
}

func (r *SessionRepository) FindFinishedSessions(ctx context.Context, userID, moduleID string) ([]domain.GameSession, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM game_sessions
		WHERE user_id=$1 AND module_id=$2 AND finished
		ORDER BY created_at`, userID, moduleID)
}

func (r *SessionRepository) ClearBestFlag(ctx context.Context, userID, moduleID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE game_sessions SET is_best=FALSE, updated_at=now()
		WHERE user_id=$1 AND module_id=$2 AND is_best`, userID, moduleID)
	if err != nil {
		return fmt.Errorf("clear best flag: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindBestSessionsForUser(ctx context.Context, userID string) ([]domain.GameSession, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM game_sessions
		WHERE user_id=$1 AND finished AND is_best
		ORDER BY module_id`, userID)
}

func (r *SessionRepository) CreateAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error) {
	answer.ID = uuid.NewString()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO answers (id, session_id, question_id, selected_option, is_correct, points, time_spent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		answer.ID, answer.SessionID, answer.QuestionID, answer.SelectedOption,
		answer.IsCorrect, answer.Points, answer.TimeSpent)
	if err := row.Scan(&answer.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.Answer{}, domain.ErrAnswerExists
		}
		return domain.Answer{}, fmt.Errorf("create answer: %w", err)
	}
	return answer, nil
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...interface{}) ([]domain.GameSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.GameSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) answeredQuestionIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT question_id FROM answers WHERE session_id=$1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSession(row pgx.Row) (domain.GameSession, error) {
	var s domain.GameSession
	var nota sql.NullFloat64
	var finishedAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.ModuleID, &s.Score, &s.CorrectAnswers, &s.TotalAnswered,
		&s.Streak, &s.MaxStreak, &nota, &s.Finished, &s.IsBest, &finishedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.GameSession{}, err
	}
	if nota.Valid {
		s.Nota = &nota.Float64
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		s.FinishedAt = &t
	}
	return s, nil
}
