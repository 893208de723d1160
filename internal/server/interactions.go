package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/domain"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

type interactionPayload struct {
	Type string `json:"type"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS   string `json:"ts"`
		Text string `json:"text"`
	} `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// handleInteractions принимает клики по кнопкам. Slack шлет форму
// с JSON в поле payload; резолюция уходит в фон, ack — сразу.
func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(r.PostFormValue("payload")), &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	if payload.Type != "block_actions" || len(payload.Actions) == 0 {
		return
	}

	inter := domain.Interaction{
		ActionID:    payload.Actions[0].ActionID,
		ActionValue: payload.Actions[0].Value,
		ClickerID:   payload.User.ID,
		Channel:     payload.Channel.ID,
		MessageTS:   payload.Message.TS,
		MessageText: payload.Message.Text,
	}

	traceID := infra.TraceID(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		ctx = infra.WithTraceID(ctx, traceID)
		if err := s.engine.Resolve(ctx, inter); err != nil {
			s.logger.Error("interaction resolve failed",
				zap.String("trace_id", traceID),
				zap.String("action_id", inter.ActionID),
				zap.Error(err))
		}
	}()
}
