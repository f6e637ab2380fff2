package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jhollyfer/cyber-sub000/internal/domain"
	"github.com/jhollyfer/cyber-sub000/internal/infra/memory"
)

type countingContent struct {
	*memory.ContentRepository
	questionCalls int
}

func (c *countingContent) FindActiveQuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error) {
	c.questionCalls++
	return c.ContentRepository.FindActiveQuestionsByModule(ctx, moduleID)
}

func TestContentRepositoryCaches(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	loader := &countingContent{ContentRepository: memory.NewContentRepository(
		[]domain.Module{{ID: "m1", Order: 1, Active: true}},
		[]domain.Question{{ID: "q1", ModuleID: "m1", Options: []string{"a", "b", "c", "d"}, Correct: 1, Active: true}},
	)}
	repo := NewContentRepository(client, loader, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		questions, err := repo.FindActiveQuestionsByModule(ctx, "m1")
		if err != nil {
			t.Fatalf("get questions: %v", err)
		}
		if len(questions) != 1 || questions[0].Correct != 1 {
			t.Fatalf("unexpected questions: %+v", questions)
		}
	}
	if loader.questionCalls != 1 {
		t.Fatalf("expected a single loader call, got %d", loader.questionCalls)
	}
	if !mr.Exists("content:questions:m1") {
		t.Fatalf("expected cache key to be set")
	}

	// Expiry forces a reload.
	mr.FastForward(2 * time.Minute)
	if _, err := repo.FindActiveQuestionsByModule(ctx, "m1"); err != nil {
		t.Fatalf("get questions after expiry: %v", err)
	}
	if loader.questionCalls != 2 {
		t.Fatalf("expected reload after TTL, got %d calls", loader.questionCalls)
	}
}

func TestContentRepositoryPropagatesLookupFailures(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	repo := NewContentRepository(client, memory.NewContentRepository(nil, nil), time.Minute)

	if _, err := repo.FindModuleByID(context.Background(), "missing"); err != domain.ErrModuleNotFound {
		t.Fatalf("expected module not found, got %v", err)
	}
}
