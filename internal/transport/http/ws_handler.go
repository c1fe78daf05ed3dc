package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteWait = 10 * time.Second

// WSHandler runs one quiz per connection: the level is fixed by the ?level=
// query parameter and the user by RequireIdentity.
type WSHandler struct {
	service  *app.QuizService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the socket on mux behind RequireIdentity.
func (h *WSHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /v1/quiz/ws", RequireIdentity(http.HandlerFunc(h.ServeWS)))
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(r.URL.Query().Get("level"))
	if err != nil {
		http.Error(w, "missing or invalid level", http.StatusBadRequest)
		return
	}
	if _, err := domain.ParseLevel(level); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// the server read/write timeouts would otherwise cut long quizzes
	_ = conn.SetReadDeadline(time.Time{})

	ctx := r.Context()
	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				// drain so the reader never blocks on a dead connection
				for range send {
				}
				return
			}
		}
	}()

	sendErr := func(err error) {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			h.log.Error("quiz socket request failed", zap.Int("level", level), zap.Error(err))
			msg = "internal error"
		}
		send <- outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
	}

	if view, err := h.service.Session(ctx, level); err == nil {
		send <- outboundMessage{Type: "session", Payload: view}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "start":
			view, err := h.service.StartQuiz(ctx, level)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage{Type: "session", Payload: view}
		case "answer":
			var payload answerPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
					continue
				}
			}
			out, err := h.service.SubmitAnswer(ctx, level, payload.Option)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage{Type: "feedback", Payload: out.Feedback}
			if out.Result != nil {
				send <- outboundMessage{Type: "result", Payload: out}
			}
			if len(out.NewAchievements) > 0 {
				send <- outboundMessage{Type: "achievements", Payload: out.NewAchievements}
			}
			send <- outboundMessage{Type: "session", Payload: out.Session}
		case "skip":
			view, err := h.service.SkipQuiz(ctx, level)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage{Type: "session", Payload: view}
		case "reset":
			view, err := h.service.ResetQuiz(ctx, level)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage{Type: "session", Payload: view}
		case "record":
			out, err := h.service.RecordQuiz(ctx, level)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage{Type: "result", Payload: out}
			if len(out.NewAchievements) > 0 {
				send <- outboundMessage{Type: "achievements", Payload: out.NewAchievements}
			}
			send <- outboundMessage{Type: "session", Payload: out.Session}
		case "state":
			view, err := h.service.Session(ctx, level)
			if err != nil {
				sendErr(err)
				continue
			}
			send <- outboundMessage{Type: "session", Payload: view}
		default:
			send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(send)
	<-writerDone
}
