package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

// Handler exposes the game-session use cases as a JSON API.
type Handler struct {
	service *app.GameService
}

func NewHandler(service *app.GameService) *Handler {
	return &Handler{service: service}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/start", h.startSession)
	mux.HandleFunc("POST /api/sessions/{id}/answers", h.submitAnswer)
	mux.HandleFunc("POST /api/sessions/{id}/finish", h.finishSession)
}

type startRequest struct {
	UserID   string `json:"userId"`
	ModuleID string `json:"moduleId"`
}

type answerRequest struct {
	UserID         string `json:"userId"`
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	TimeSpent      int    `json:"timeSpent"`
}

type finishRequest struct {
	UserID string `json:"userId"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.ModuleID == "" {
		writeBadRequest(w, "userId and moduleId are required")
		return
	}
	result, err := h.service.Start(r.Context(), req.UserID, req.ModuleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.QuestionID == "" {
		writeBadRequest(w, "userId and questionId are required")
		return
	}
	if req.SelectedOption < domain.TimeoutOption {
		writeBadRequest(w, "selectedOption must be >= -1")
		return
	}
	if req.TimeSpent < 0 {
		writeBadRequest(w, "timeSpent must be >= 0")
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), app.SubmitInput{
		SessionID:      r.PathValue("id"),
		UserID:         req.UserID,
		QuestionID:     req.QuestionID,
		SelectedOption: req.SelectedOption,
		TimeSpent:      req.TimeSpent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) finishSession(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "userId is required")
		return
	}
	result, err := h.service.Finish(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_REQUEST", Message: message})
}

// writeError maps a domain error's status and cause onto the response;
// anything else is a plain 500.
func writeError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		writeJSON(w, derr.Status, errorResponse{Error: derr.Cause, Message: derr.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL_ERROR", Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
