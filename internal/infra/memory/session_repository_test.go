package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	session, err := repo.CreateSession(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.ID == "" || session.Finished || session.Score != 0 {
		t.Fatalf("unexpected fresh session: %+v", session)
	}

	score := 110
	finished := true
	nota := 10.0
	now := time.Now()
	updated, err := repo.UpdateSession(ctx, session.ID, app.SessionUpdate{
		Score: &score, Finished: &finished, Nota: &nota, FinishedAt: &now,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Score != 110 || !updated.Finished || updated.Nota == nil || *updated.Nota != 10 {
		t.Fatalf("unexpected updated session: %+v", updated)
	}

	if _, err := repo.UpdateSession(ctx, "missing", app.SessionUpdate{Score: &score}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindUnfinishedSession(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	if _, _, ok, _ := repo.FindUnfinishedSession(ctx, "u1", "m1"); ok {
		t.Fatalf("expected no unfinished session")
	}

	session, _ := repo.CreateSession(ctx, "u1", "m1")
	if _, err := repo.CreateAnswer(ctx, domain.Answer{SessionID: session.ID, QuestionID: "q1"}); err != nil {
		t.Fatalf("create answer: %v", err)
	}

	found, answered, ok, err := repo.FindUnfinishedSession(ctx, "u1", "m1")
	if err != nil || !ok {
		t.Fatalf("expected unfinished session, ok=%v err=%v", ok, err)
	}
	if found.ID != session.ID || len(answered) != 1 || answered[0] != "q1" {
		t.Fatalf("unexpected lookup: session=%s answered=%v", found.ID, answered)
	}

	finished := true
	if _, err := repo.UpdateSession(ctx, session.ID, app.SessionUpdate{Finished: &finished}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, _, ok, _ := repo.FindUnfinishedSession(ctx, "u1", "m1"); ok {
		t.Fatalf("expected no unfinished session after finishing")
	}
}

func TestCreateAnswerEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	session, _ := repo.CreateSession(ctx, "u1", "m1")

	answer := domain.Answer{SessionID: session.ID, QuestionID: "q1", SelectedOption: 2, Points: 110}
	if _, err := repo.CreateAnswer(ctx, answer); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if _, err := repo.CreateAnswer(ctx, answer); !errors.Is(err, domain.ErrAnswerExists) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	if n := repo.AnswerCount(session.ID); n != 1 {
		t.Fatalf("expected 1 answer, got %d", n)
	}
}

func TestCreateAnswerUniquenessUnderRace(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	session, _ := repo.CreateSession(ctx, "u1", "m1")

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.CreateAnswer(ctx, domain.Answer{SessionID: session.ID, QuestionID: "q1"})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !errors.Is(err, domain.ErrAnswerExists) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one racer to win, got %d", won)
	}
	if n := repo.AnswerCount(session.ID); n != 1 {
		t.Fatalf("expected 1 answer after race, got %d", n)
	}
}

func TestBestFlagTracking(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	mark := func(userID, moduleID string) domain.GameSession {
		t.Helper()
		session, _ := repo.CreateSession(ctx, userID, moduleID)
		finished, isBest := true, true
		nota := 10.0
		updated, err := repo.UpdateSession(ctx, session.ID, app.SessionUpdate{
			Finished: &finished, IsBest: &isBest, Nota: &nota,
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		return updated
	}

	first := mark("u1", "m1")
	mark("u1", "m2")

	best, ok, err := repo.FindBestSession(ctx, "u1", "m1")
	if err != nil || !ok || best.ID != first.ID {
		t.Fatalf("expected best session %s, got ok=%v best=%s err=%v", first.ID, ok, best.ID, err)
	}

	all, err := repo.FindBestSessionsForUser(ctx, "u1")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 best sessions, got %d err=%v", len(all), err)
	}

	if err := repo.ClearBestFlag(ctx, "u1", "m1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := repo.FindBestSession(ctx, "u1", "m1"); ok {
		t.Fatalf("expected best flag cleared for m1")
	}
	if _, ok, _ := repo.FindBestSession(ctx, "u1", "m2"); !ok {
		t.Fatalf("expected m2 best flag untouched")
	}
}
