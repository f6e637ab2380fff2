package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

// ContentRepository serves modules and questions from an in-memory snapshot
// (useful for tests/demos, or as the fallback when Postgres is not
// configured).
type ContentRepository struct {
	mu        sync.RWMutex
	modules   map[string]domain.Module
	questions map[string]domain.Question
}

func NewContentRepository(modules []domain.Module, questions []domain.Question) *ContentRepository {
	r := &ContentRepository{
		modules:   make(map[string]domain.Module, len(modules)),
		questions: make(map[string]domain.Question, len(questions)),
	}
	for _, m := range modules {
		r.modules[m.ID] = m
	}
	for _, q := range questions {
		r.questions[q.ID] = q
	}
	return r
}

func (r *ContentRepository) FindModuleByID(_ context.Context, id string) (domain.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, ok := r.modules[id]
	if !ok {
		return domain.Module{}, domain.ErrModuleNotFound
	}
	return module, nil
}

func (r *ContentRepository) FindActiveModulesOrdered(_ context.Context) ([]domain.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]domain.Module, 0, len(r.modules))
	for _, m := range r.modules {
		if m.Active {
			modules = append(modules, m)
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Order < modules[j].Order })
	return modules, nil
}

func (r *ContentRepository) FindActiveQuestionsByModule(_ context.Context, moduleID string) ([]domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	questions := make([]domain.Question, 0)
	for _, q := range r.questions {
		if q.ModuleID == moduleID && q.Active {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, nil
}

func (r *ContentRepository) FindQuestionByID(_ context.Context, id string) (domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	question, ok := r.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return question, nil
}

// SetQuestionActive flips a question's active flag; content edits are an
// admin concern, this exists so tests can change the active set mid-session.
func (r *ContentRepository) SetQuestionActive(id string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.questions[id]; ok {
		q.Active = active
		r.questions[id] = q
	}
}
