package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// commandContext — распарсенная слэш-команда.
type commandContext struct {
	Command string
	Text    string
	UserID  string
}

// handleCommands — реестр слэш-команд: /mop-help, /bug, /feature.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	cmd := commandContext{
		Command: r.PostFormValue("command"),
		Text:    strings.TrimSpace(r.PostFormValue("text")),
		UserID:  r.PostFormValue("user_id"),
	}

	var reply string
	switch cmd.Command {
	case "/mop-help":
		reply = helpText
	case "/bug":
		reply = s.fileIssue(r.Context(), "Bug", cmd)
	case "/feature":
		reply = s.fileIssue(r.Context(), "Feature", cmd)
	default:
		reply = fmt.Sprintf("Unknown command %s. Try /mop-help.", cmd.Command)
	}

	// ephemeral-ответ в канал команды
	writeJSON(w, http.StatusOK, map[string]string{
		"response_type": "ephemeral",
		"text":          reply,
	})
}

func (s *Server) fileIssue(ctx context.Context, kind string, cmd commandContext) string {
	if s.linear == nil {
		return "Issue tracking is not connected."
	}
	if cmd.Text == "" {
		return fmt.Sprintf("Usage: %s <description>", strings.ToLower("/"+kind))
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	issue, err := s.linear.FileIssueFromMessage(ctx, kind, cmd.Text, "<@"+cmd.UserID+">")
	if err != nil {
		s.logger.Error("file issue failed", zap.String("kind", kind), zap.Error(err))
		return "Could not file the issue. Please try again later."
	}
	return fmt.Sprintf("Filed %s: %s", issue.Identifier, issue.URL)
}

const helpText = `*What I can do*
Mention me in a channel or DM me a question about your connected systems (Salesforce, HubSpot, Marketo, Linear, GitHub).

Examples:
• "How many open opportunities does Acme have?"
• "Update the phone number on contact 003XX000004TmiQ"
• "Export all contacts created this week to CSV"

Write operations may require approval from an authorized user before they run.

*Commands*
• /mop-help — this message
• /bug <description> — file a bug
• /feature <description> — request a feature`
