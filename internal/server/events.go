package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/approval"
	slackconn "github.com/joe-reitz/oss-moperator/internal/connectors/slack"
	"github.com/joe-reitz/oss-moperator/internal/infra"
	"github.com/joe-reitz/oss-moperator/internal/llm"
)

// Бюджет на один агентский прогон (вместе со всеми вызовами инструментов)
const agentTimeout = 3 * time.Minute

// Префиксы-ярлыки: такие сообщения заводят задачу в Linear напрямую,
// без прогона через модель.
var issueShortcuts = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`(?i)^bug:\s*(.+)`), "Bug"},
	{regexp.MustCompile(`(?i)^feature\s*request:\s*(.+)`), "Feature"},
	{regexp.MustCompile(`(?i)^feature:\s*(.+)`), "Feature"},
	{regexp.MustCompile(`(?i)^todo:\s*(.+)`), "Feature"},
}

func matchIssueShortcut(text string) (kind, description string, ok bool) {
	for _, sc := range issueShortcuts {
		if m := sc.re.FindStringSubmatch(text); m != nil {
			return sc.kind, strings.TrimSpace(m[1]), true
		}
	}
	return "", "", false
}

type slackEvent struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type        string      `json:"type"`
		ChannelType string      `json:"channel_type"`
		User        string      `json:"user"`
		BotID       string      `json:"bot_id"`
		Text        string      `json:"text"`
		Channel     string      `json:"channel"`
		TS          string      `json:"ts"`
		ThreadTS    string      `json:"thread_ts"`
		Files       []slackFile `json:"files"`
	} `json:"event"`
}

type slackFile struct {
	URLPrivate string `json:"url_private"`
	Name       string `json:"name"`
	Filetype   string `json:"filetype"`
	Mimetype   string `json:"mimetype"`
}

// Потолок превью приложенного CSV в тексте запроса
const csvPreviewLimit = 10_000

// findCSVFile выбирает первый CSV из приложенных к сообщению файлов.
func findCSVFile(files []slackFile) *slackFile {
	for i := range files {
		f := &files[i]
		if f.Filetype == "csv" || strings.HasSuffix(f.Name, ".csv") || f.Mimetype == "text/csv" {
			return f
		}
	}
	return nil
}

// appendCSVData дописывает содержимое приложенного CSV к запросу
// пользователя, обрезая слишком длинные файлы.
func appendCSVData(text, csvData string) string {
	preview := csvData
	if len(preview) > csvPreviewLimit {
		preview = preview[:csvPreviewLimit] + "\n...(truncated)"
	}
	return fmt.Sprintf("%s\n\nAttached CSV data:\n```\n%s\n```", text, preview)
}

// handleEvents принимает Events API. Slack требует ответ за 3 секунды,
// поэтому ack уходит сразу, а агент работает в фоне.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var ev slackEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if ev.Type == "url_verification" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": ev.Challenge})
		return
	}

	w.WriteHeader(http.StatusOK)

	// Свои же сообщения и эхо бота игнорируем
	if ev.Event.BotID != "" || ev.Event.User == "" || ev.Event.User == s.cfg.Slack.BotUserID {
		return
	}

	isMention := ev.Event.Type == "app_mention"
	isDM := ev.Event.Type == "message" && ev.Event.ChannelType == "im"
	if !isMention && !isDM {
		return
	}

	traceID := infra.TraceID(r.Context())
	go s.runAgent(traceID, ev)
}

func (s *Server) runAgent(traceID string, ev slackEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), agentTimeout)
	defer cancel()
	ctx = infra.WithTraceID(ctx, traceID)

	channel := ev.Event.Channel
	threadTS := ev.Event.ThreadTS
	if threadTS == "" {
		threadTS = ev.Event.TS
	}
	userText := strings.TrimSpace(slackconn.StripMentions(ev.Event.Text))
	if userText == "" {
		// Пустое упоминание отвечаем подсказкой, а не молчанием
		hint := "Hey! Ask me anything. Try: `show me active campaigns` or `export contacts as csv`"
		if _, err := s.slack.PostMessage(ctx, channel, threadTS, hint, nil); err != nil {
			s.logger.Error("post usage hint failed", zap.String("trace_id", traceID), zap.Error(err))
		}
		return
	}

	logger := s.logger.With(
		zap.String("trace_id", traceID),
		zap.String("channel", channel),
		zap.String("user", ev.Event.User))

	thinkingTS, err := s.slack.PostThinking(ctx, channel, threadTS)
	if err != nil {
		logger.Error("post thinking failed", zap.Error(err))
		return
	}

	// Ярлыки bug:/feature: минуют модель и сразу заводят задачу.
	// При ошибке сообщение уходит в обычную обработку.
	if kind, desc, ok := matchIssueShortcut(userText); ok && s.linear != nil {
		issue, err := s.linear.FileIssueFromMessage(ctx, kind, desc, fmt.Sprintf("<@%s>", ev.Event.User))
		if err == nil {
			label := "Bug filed"
			if kind != "Bug" {
				label = "Feature request filed"
			}
			text := fmt.Sprintf("*%s:* <%s|%s> — %s", label, issue.URL, issue.Identifier, issue.Title)
			if err := s.slack.UpdateMessage(ctx, channel, thinkingTS, text); err != nil {
				logger.Error("update reply failed", zap.Error(err))
			}
			return
		}
		logger.Warn("issue shortcut failed, falling back to agent", zap.Error(err))
	}

	// Приложенный CSV уходит в запрос как данные: сценарий
	// "вот файл, обнови записи по нему".
	if f := findCSVFile(ev.Event.Files); f != nil {
		csvData, err := s.slack.DownloadFile(ctx, f.URLPrivate)
		if err != nil {
			logger.Warn("attached csv download failed", zap.String("file", f.Name), zap.Error(err))
		} else if csvData != "" {
			userText = appendCSVData(userText, csvData)
		}
	}

	history, err := s.slack.ThreadHistory(ctx, channel, threadTS, ev.Event.TS)
	if err != nil {
		logger.Warn("thread history unavailable", zap.Error(err))
	}
	messages := make([]llm.Message, 0, len(history))
	for _, h := range history {
		messages = append(messages, llm.Message{Role: h.Role, Content: h.Content})
	}

	authorized, err := s.auth.IsAuthorized(ctx, ev.Event.User)
	if err != nil {
		logger.Warn("authorization check failed, treating as unauthorized", zap.Error(err))
		authorized = false
	}

	scope := approval.RequestScope{
		Channel:     channel,
		ThreadTS:    threadTS,
		RequesterID: ev.Event.User,
	}
	registry := s.gate.ForRequest(s.base, scope, authorized)
	registry.Register(s.exportCSVTool(channel, threadTS))

	reply, err := s.agent.Run(ctx, s.system, messages, userText, registry)
	if err != nil {
		logger.Error("agent run failed", zap.Error(err))
		reply = "Sorry, something went wrong while processing your request. Please try again."
	}
	if reply == "" {
		reply = "Done."
	}

	if err := s.slack.UpdateMessage(ctx, channel, thinkingTS, slackconn.FormatMarkdown(reply)); err != nil {
		logger.Error("update reply failed", zap.Error(err))
	}
}
