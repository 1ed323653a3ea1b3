package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"chapter-quiz-service/internal/app"
	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/quiz"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logging.OrDefault(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Response *quiz.Response `json:"response"`
}

type signInPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type hintPayload struct {
	Hint string `json:"hint"`
}

type unavailablePayload struct {
	Chapter int `json:"chapter"`
}

type progressPayload struct {
	Chapters     map[int]domain.ChapterProgress `json:"chapters"`
	Due          []domain.SpacedRepetitionEntry `json:"due"`
	Achievements domain.AchievementLedger       `json:"achievements"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	chapter, err := strconv.Atoi(r.URL.Query().Get("chapter"))
	if deviceID == "" || err != nil || chapter <= 0 {
		http.Error(w, "missing deviceId or chapter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	logger := h.logger.With("device", deviceID, "chapter", chapter)

	updates, cancel, err := h.service.Subscribe(ctx, deviceID, chapter)
	if errors.Is(err, domain.ErrQuizNotFound) {
		_ = conn.WriteJSON(outboundMessage[unavailablePayload]{Type: "unavailable", Payload: unavailablePayload{Chapter: chapter}})
		return
	}
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	defer h.service.Close(context.Background(), deviceID, chapter)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("ws write failed", "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		for _, msg := range h.handle(ctx, logger, deviceID, chapter, inbound) {
			select {
			case send <- msg:
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle runs one inbound command. Snapshots reach the client through the
// subscription; the messages returned here carry what a snapshot does not.
func (h *WSHandler) handle(ctx context.Context, logger *slog.Logger, deviceID string, chapter int, in inboundMessage) []outboundMessage[any] {
	var (
		update app.Update
		err    error
	)
	switch in.Type {
	case "start":
		update, err = h.service.Start(ctx, deviceID, chapter)
	case "retry":
		update, err = h.service.Retry(ctx, deviceID, chapter)
	case "answer":
		var payload answerPayload
		if jerr := json.Unmarshal(in.Payload, &payload); jerr != nil {
			return []outboundMessage[any]{errorMessage("invalid_payload", "invalid answer payload")}
		}
		update, err = h.service.Answer(ctx, deviceID, chapter, payload.Response)
	case "hint":
		update, err = h.service.Hint(ctx, deviceID, chapter)
	case "continue":
		update, err = h.service.Continue(ctx, deviceID, chapter)
	case "prev":
		update, err = h.service.Prev(ctx, deviceID, chapter)
	case "signIn":
		var payload signInPayload
		if jerr := json.Unmarshal(in.Payload, &payload); jerr != nil {
			return []outboundMessage[any]{errorMessage("invalid_payload", "invalid signIn payload")}
		}
		record, err := h.service.SignIn(ctx, deviceID, payload.UserID, payload.Email)
		if err != nil {
			logger.Warn("sign in failed", "error", err)
			return []outboundMessage[any]{{Type: "error", Payload: toErrorPayload(err)}}
		}
		return []outboundMessage[any]{{Type: "merged", Payload: record}}
	case "progress":
		return []outboundMessage[any]{h.progress(ctx, deviceID)}
	default:
		return []outboundMessage[any]{errorMessage("unsupported", "unsupported message type")}
	}

	if errors.Is(err, domain.ErrQuizNotFound) {
		return []outboundMessage[any]{{Type: "unavailable", Payload: unavailablePayload{Chapter: chapter}}}
	}
	if err != nil {
		return []outboundMessage[any]{{Type: "error", Payload: toErrorPayload(err)}}
	}

	var out []outboundMessage[any]
	if update.Outcome.Feedback != nil {
		out = append(out, outboundMessage[any]{Type: "feedback", Payload: update.Outcome.Feedback})
	}
	if update.Outcome.Hint != "" {
		out = append(out, outboundMessage[any]{Type: "hint", Payload: hintPayload{Hint: update.Outcome.Hint}})
	}
	if update.Completion != nil {
		out = append(out, outboundMessage[any]{Type: "complete", Payload: update.Completion})
	}
	return out
}

func (h *WSHandler) progress(ctx context.Context, deviceID string) outboundMessage[any] {
	chapters, err := h.service.Progress(ctx, deviceID)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
	}
	due, err := h.service.DueReviews(ctx, deviceID)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
	}
	ledger, err := h.service.Achievements(ctx, deviceID)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
	}
	if due == nil {
		due = []domain.SpacedRepetitionEntry{}
	}
	return outboundMessage[any]{Type: "progress", Payload: progressPayload{Chapters: chapters, Due: due, Achievements: ledger}}
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

func toErrorPayload(err error) errorPayload {
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		code = "invalid_transition"
	case errors.Is(err, domain.ErrNoHintsRemaining):
		code = "no_hints_remaining"
	case errors.Is(err, domain.ErrInvalidResponse):
		code = "invalid_response"
	case errors.Is(err, domain.ErrSessionNotFound):
		code = "session_not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		code = "invalid_input"
	case errors.Is(err, app.ErrRemoteUnavailable):
		code = "remote_unavailable"
	}
	return errorPayload{Code: code, Message: err.Error()}
}
