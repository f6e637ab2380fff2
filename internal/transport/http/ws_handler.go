package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

// WSHandler drives a whole session interactively over one websocket: the
// session starts (or resumes) on connect, answer messages submit answers,
// and a finish message grades the attempt and ends the conversation.
type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type wsInbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsOutbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type wsAnswerPayload struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	TimeSpent      int    `json:"timeSpent"`
}

// ServeWS upgrades the request and plays a session over the socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	moduleID := r.URL.Query().Get("moduleId")
	if userID == "" || moduleID == "" {
		http.Error(w, "missing userId or moduleId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	started, err := h.service.Start(r.Context(), userID, moduleID)
	if err != nil {
		h.writeError(conn, err)
		return
	}
	h.write(conn, wsOutbound{Type: "started", Payload: started})

	sessionID := started.Session.ID
	for {
		var inbound wsInbound
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload wsAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.write(conn, wsOutbound{Type: "error", Payload: errorResponse{Error: "INVALID_PAYLOAD", Message: "invalid answer payload"}})
				continue
			}
			result, err := h.service.SubmitAnswer(r.Context(), app.SubmitInput{
				SessionID:      sessionID,
				UserID:         userID,
				QuestionID:     payload.QuestionID,
				SelectedOption: payload.SelectedOption,
				TimeSpent:      payload.TimeSpent,
			})
			if err != nil {
				h.writeError(conn, err)
				continue
			}
			h.write(conn, wsOutbound{Type: "answerResult", Payload: result})
		case "finish":
			result, err := h.service.Finish(r.Context(), sessionID, userID)
			if err != nil {
				h.writeError(conn, err)
				continue
			}
			h.write(conn, wsOutbound{Type: "finished", Payload: result})
			return
		default:
			h.writeError(conn, errors.New("unsupported message type"))
		}
	}
}

func (h *WSHandler) writeError(conn *websocket.Conn, err error) {
	payload := errorResponse{Error: "INTERNAL_ERROR", Message: err.Error()}
	var derr *domain.Error
	if errors.As(err, &derr) {
		payload.Error = derr.Cause
	}
	h.write(conn, wsOutbound{Type: "error", Payload: payload})
}

func (h *WSHandler) write(conn *websocket.Conn, msg wsOutbound) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("ws write error: %v", err)
	}
}
