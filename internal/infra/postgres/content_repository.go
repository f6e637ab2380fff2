package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

// ContentRepository loads modules and questions from Postgres. Question
// options are stored as a JSONB array.
type ContentRepository struct {
	pool *pgxpool.Pool
}

func NewContentRepository(pool *pgxpool.Pool) *ContentRepository {
	return &ContentRepository{pool: pool}
}

func (r *ContentRepository) FindModuleByID(ctx context.Context, id string) (domain.Module, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, description, icon, label, "order", active, time_per_question
		FROM modules WHERE id=$1`, id)
	module, err := scanModule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Module{}, domain.ErrModuleNotFound
	}
	if err != nil {
		return domain.Module{}, fmt.Errorf("find module: %w", err)
	}
	return module, nil
}

func (r *ContentRepository) FindActiveModulesOrdered(ctx context.Context) ([]domain.Module, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, description, icon, label, "order", active, time_per_question
		FROM modules WHERE active ORDER BY "order"`)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	modules := make([]domain.Module, 0)
	for rows.Next() {
		module, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

func (r *ContentRepository) FindActiveQuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, module_id, prompt, options, correct, explanation, active
		FROM questions WHERE module_id=$1 AND active ORDER BY id`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, question)
	}
	return questions, rows.Err()
}

func (r *ContentRepository) FindQuestionByID(ctx context.Context, id string) (domain.Question, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, module_id, prompt, options, correct, explanation, active
		FROM questions WHERE id=$1`, id)
	question, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("find question: %w", err)
	}
	return question, nil
}

func scanModule(row pgx.Row) (domain.Module, error) {
	var m domain.Module
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Icon, &m.Label, &m.Order, &m.Active, &m.TimePerQuestion)
	return m, err
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	var options []byte
	if err := row.Scan(&q.ID, &q.ModuleID, &q.Prompt, &options, &q.Correct, &q.Explanation, &q.Active); err != nil {
		return domain.Question{}, err
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return q, nil
}
