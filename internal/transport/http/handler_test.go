package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
	"github.com/jhollyfer/cyber-sub000/internal/infra/memory"
)

func newTestServer() *httptest.Server {
	content := memory.NewContentRepository(
		[]domain.Module{
			{ID: "m1", Title: "First", Order: 1, Active: true},
			{ID: "m2", Title: "Second", Order: 2, Active: true},
		},
		[]domain.Question{
			{ID: "q1", ModuleID: "m1", Prompt: "pick a", Options: []string{"a", "b", "c", "d"}, Correct: 0, Explanation: "a wins", Active: true},
		},
	)
	service := app.NewGameServiceWithRand(content, memory.NewSessionRepository(),
		rand.New(rand.NewSource(1)), time.Now)

	mux := http.NewServeMux()
	NewHandler(service).Register(mux)
	mux.HandleFunc("/ws/play", NewWSHandler(service).ServeWS)
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	decoded := map[string]json.RawMessage{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestStartSubmitFinishFlow(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	resp, body := postJSON(t, server.URL+"/api/sessions/start", map[string]string{
		"userId": "u1", "moduleId": "m1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d", resp.StatusCode)
	}
	var started app.StartResult
	mustUnmarshal(t, body, &started)
	if started.Resumed || len(started.Questions) != 1 {
		t.Fatalf("unexpected start payload: %+v", started)
	}

	answersURL := fmt.Sprintf("%s/api/sessions/%s/answers", server.URL, started.Session.ID)
	resp, body = postJSON(t, answersURL, map[string]interface{}{
		"userId": "u1", "questionId": "q1", "selectedOption": 0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	var answered app.SubmitResult
	mustUnmarshal(t, body, &answered)
	if !answered.IsCorrect || answered.Points != 110 || answered.Explanation != "a wins" {
		t.Fatalf("unexpected submit payload: %+v", answered)
	}

	// Duplicate submission maps to 409 with the stable cause.
	resp, body = postJSON(t, answersURL, map[string]interface{}{
		"userId": "u1", "questionId": "q1", "selectedOption": 0,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate submit status %d", resp.StatusCode)
	}
	if cause := decodeString(t, body["error"]); cause != "ANSWER_EXISTS" {
		t.Fatalf("expected ANSWER_EXISTS, got %s", cause)
	}

	resp, body = postJSON(t, fmt.Sprintf("%s/api/sessions/%s/finish", server.URL, started.Session.ID),
		map[string]string{"userId": "u1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish status %d", resp.StatusCode)
	}
	var finished app.FinishResult
	mustUnmarshal(t, body, &finished)
	if finished.Session.Nota == nil || *finished.Session.Nota != 10 || !finished.Session.IsBest {
		t.Fatalf("unexpected finish payload: %+v", finished.Session)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	cases := []struct {
		name       string
		url        string
		body       interface{}
		wantStatus int
		wantCause  string
	}{
		{
			name:       "unknown module",
			url:        "/api/sessions/start",
			body:       map[string]string{"userId": "u1", "moduleId": "nope"},
			wantStatus: http.StatusNotFound,
			wantCause:  "MODULE_NOT_FOUND",
		},
		{
			name:       "progression gate",
			url:        "/api/sessions/start",
			body:       map[string]string{"userId": "u1", "moduleId": "m2"},
			wantStatus: http.StatusBadRequest,
			wantCause:  "PREVIOUS_MODULE_NOT_COMPLETED",
		},
		{
			name:       "unknown session",
			url:        "/api/sessions/nope/finish",
			body:       map[string]string{"userId": "u1"},
			wantStatus: http.StatusNotFound,
			wantCause:  "SESSION_NOT_FOUND",
		},
		{
			name:       "missing fields",
			url:        "/api/sessions/start",
			body:       map[string]string{"userId": "u1"},
			wantStatus: http.StatusBadRequest,
			wantCause:  "INVALID_REQUEST",
		},
	}
	for _, tc := range cases {
		resp, body := postJSON(t, server.URL+tc.url, tc.body)
		if resp.StatusCode != tc.wantStatus {
			t.Errorf("%s: status %d, want %d", tc.name, resp.StatusCode, tc.wantStatus)
			continue
		}
		if cause := decodeString(t, body["error"]); cause != tc.wantCause {
			t.Errorf("%s: cause %s, want %s", tc.name, cause, tc.wantCause)
		}
	}
}

func TestForbiddenSession(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	_, body := postJSON(t, server.URL+"/api/sessions/start", map[string]string{
		"userId": "u1", "moduleId": "m1",
	})
	var started app.StartResult
	mustUnmarshal(t, body, &started)

	resp, body := postJSON(t, fmt.Sprintf("%s/api/sessions/%s/finish", server.URL, started.Session.ID),
		map[string]string{"userId": "intruder"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if cause := decodeString(t, body["error"]); cause != "SESSION_FORBIDDEN" {
		t.Fatalf("expected SESSION_FORBIDDEN, got %s", cause)
	}
}

func mustUnmarshal(t *testing.T, body map[string]json.RawMessage, dest interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func decodeString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode string: %v", err)
	}
	return s
}
