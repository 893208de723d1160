package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/approval"
	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

const apiBase = "https://slack.com/api"

// Client — тонкая обертка над Slack Web API. Реализует approval.Chat,
// approval.Directory и policy.DirectoryLookup.
type Client struct {
	token     string
	botUserID string
	hc        *connectors.Client
	logger    *zap.Logger

	// Кэш users.info: профили меняются редко, а дергается он на каждый
	// авторизационный чек.
	mu    sync.Mutex
	users map[string]userProfile
}

type userProfile struct {
	email     string
	name      string
	fetchedAt time.Time
}

func NewClient(cfg infra.SlackConfig, logger *zap.Logger) *Client {
	return &Client{
		token:     cfg.BotToken,
		botUserID: cfg.BotUserID,
		hc:        connectors.NewClient("slack"),
		logger:    logger.Named("slack"),
		users:     make(map[string]userProfile),
	}
}

func (c *Client) jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("Content-Type", "application/json; charset=utf-8")
	return h
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// callResult — общий конверт ответов Web API.
type callResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

func (c *Client) call(ctx context.Context, method string, payload any) (*callResult, []byte, error) {
	if c.token == "" {
		return nil, nil, fmt.Errorf("slack: bot token not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("slack: marshal %s: %w", method, err)
	}

	status, respBody, err := c.hc.Do(ctx, http.MethodPost, apiBase+"/"+method, c.jsonHeader(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("slack: %s: %w", method, err)
	}
	if err := connectors.ErrorFromStatus(status, respBody); err != nil {
		return nil, nil, fmt.Errorf("slack: %s: %w", method, err)
	}

	var res callResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, nil, fmt.Errorf("slack: decode %s: %w", method, err)
	}
	if !res.OK {
		return nil, respBody, fmt.Errorf("slack: %s failed: %s", method, res.Error)
	}
	return &res, respBody, nil
}

// PostMessage постит сообщение (опционально в тред, опционально с кнопками)
// и возвращает его ts.
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string, buttons []approval.Button) (string, error) {
	payload := map[string]any{"channel": channel, "text": text}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	if len(buttons) > 0 {
		payload["blocks"] = promptBlocks(text, buttons)
	}

	res, _, err := c.call(ctx, "chat.postMessage", payload)
	if err != nil {
		return "", err
	}
	return res.TS, nil
}

func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string) error {
	_, _, err := c.call(ctx, "chat.update", map[string]any{
		"channel": channel,
		"ts":      ts,
		"text":    text,
		// Затираем старые блоки: у обновленного промпта кнопок быть не должно
		"blocks": []any{},
	})
	return err
}

func (c *Client) PostEphemeral(ctx context.Context, channel, userID, text string) error {
	_, _, err := c.call(ctx, "chat.postEphemeral", map[string]any{
		"channel": channel,
		"user":    userID,
		"text":    text,
	})
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, channel, ts string) error {
	_, _, err := c.call(ctx, "chat.delete", map[string]any{
		"channel": channel,
		"ts":      ts,
	})
	return err
}

// promptBlocks собирает Block Kit разметку approval-промпта:
// секция с текстом + ряд кнопок. Id заявки едет в value кнопки.
func promptBlocks(text string, buttons []approval.Button) []map[string]any {
	elements := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		el := map[string]any{
			"type":      "button",
			"text":      map[string]any{"type": "plain_text", "text": b.Text, "emoji": true},
			"action_id": b.ActionID,
		}
		if b.Style != "" {
			el["style"] = b.Style
		}
		if b.Value != "" {
			el["value"] = b.Value
		}
		elements = append(elements, el)
	}

	return []map[string]any{
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": text},
		},
		{
			"type":     "actions",
			"elements": elements,
		},
	}
}

// ─── Пользователи ───

type userInfoResponse struct {
	OK   bool `json:"ok"`
	User struct {
		Profile struct {
			Email       string `json:"email"`
			RealName    string `json:"real_name"`
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user"`
}

func (c *Client) userInfo(ctx context.Context, userID string) (userProfile, error) {
	c.mu.Lock()
	if p, ok := c.users[userID]; ok && time.Since(p.fetchedAt) < 5*time.Minute {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	status, body, err := c.hc.Do(ctx, http.MethodGet,
		apiBase+"/users.info?user="+url.QueryEscape(userID), c.authHeader(), nil)
	if err != nil {
		return userProfile{}, fmt.Errorf("slack: users.info: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return userProfile{}, fmt.Errorf("slack: users.info: %w", err)
	}

	var res userInfoResponse
	if err := json.Unmarshal(body, &res); err != nil || !res.OK {
		return userProfile{}, fmt.Errorf("slack: users.info failed for %s", userID)
	}

	name := res.User.Profile.RealName
	if name == "" {
		name = res.User.Profile.DisplayName
	}
	p := userProfile{email: res.User.Profile.Email, name: name, fetchedAt: time.Now()}

	c.mu.Lock()
	c.users[userID] = p
	c.mu.Unlock()
	return p, nil
}

// UserEmail реализует policy.DirectoryLookup.
func (c *Client) UserEmail(ctx context.Context, userID string) (string, error) {
	p, err := c.userInfo(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.email, nil
}

// DisplayName реализует approval.Directory. Ошибка не фатальна:
// промпт обойдется сырым user id.
func (c *Client) DisplayName(ctx context.Context, userID string) string {
	p, err := c.userInfo(ctx, userID)
	if err != nil || p.name == "" {
		return userID
	}
	return p.name
}

// ─── История треда ───

type HistoryMessage struct {
	Role    string // user | assistant
	Content string
}

type repliesResponse struct {
	OK       bool `json:"ok"`
	Messages []struct {
		TS    string `json:"ts"`
		Text  string `json:"text"`
		User  string `json:"user"`
		BotID string `json:"bot_id"`
	} `json:"messages"`
}

// ThreadHistory восстанавливает диалог треда для контекста агента.
// Соседние сообщения одной роли склеиваются (API модели требует чередования),
// ведущие ответы ассистента отбрасываются.
func (c *Client) ThreadHistory(ctx context.Context, channel, threadTS, excludeTS string) ([]HistoryMessage, error) {
	q := url.Values{}
	q.Set("channel", channel)
	q.Set("ts", threadTS)
	q.Set("limit", "50")

	status, body, err := c.hc.Do(ctx, http.MethodGet,
		apiBase+"/conversations.replies?"+q.Encode(), c.authHeader(), nil)
	if err != nil {
		return nil, fmt.Errorf("slack: conversations.replies: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return nil, fmt.Errorf("slack: conversations.replies: %w", err)
	}

	var res repliesResponse
	if err := json.Unmarshal(body, &res); err != nil || !res.OK {
		return nil, fmt.Errorf("slack: conversations.replies failed")
	}

	var raw []HistoryMessage
	for _, msg := range res.Messages {
		if excludeTS != "" && msg.TS == excludeTS {
			continue
		}
		role := "user"
		if msg.BotID != "" || (c.botUserID != "" && msg.User == c.botUserID) {
			role = "assistant"
		}
		content := strings.TrimSpace(StripMentions(msg.Text))
		if content != "" {
			raw = append(raw, HistoryMessage{Role: role, Content: content})
		}
	}

	// Склейка подряд идущих сообщений одной роли
	var history []HistoryMessage
	for _, msg := range raw {
		if n := len(history); n > 0 && history[n-1].Role == msg.Role {
			history[n-1].Content += "\n\n" + msg.Content
			continue
		}
		history = append(history, msg)
	}

	// Диалог должен начинаться с пользователя
	for len(history) > 0 && history[0].Role == "assistant" {
		history = history[1:]
	}
	return history, nil
}

// ─── Заглушка «думаю...» ───

var thinkingMessages = []string{
	"Thinking...",
	"Working on it...",
	"Querying data...",
	"Processing your request...",
	"Looking into that...",
	"Let me check...",
}

func (c *Client) PostThinking(ctx context.Context, channel, threadTS string) (string, error) {
	text := thinkingMessages[rand.Intn(len(thinkingMessages))]
	return c.PostMessage(ctx, channel, threadTS, text, nil)
}

// ─── Файлы ───

type uploadURLResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	UploadURL string `json:"upload_url"`
	FileID    string `json:"file_id"`
}

// UploadFile загружает файл по трехшаговой external-схеме:
// getUploadURLExternal -> POST содержимого -> completeUploadExternal.
func (c *Client) UploadFile(ctx context.Context, channel, threadTS, filename, title, content string) error {
	form := url.Values{}
	form.Set("filename", filename)
	form.Set("length", fmt.Sprintf("%d", len(content)))

	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := c.hc.Do(ctx, http.MethodPost,
		apiBase+"/files.getUploadURLExternal", h, []byte(form.Encode()))
	if err != nil {
		return fmt.Errorf("slack: getUploadURLExternal: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return fmt.Errorf("slack: getUploadURLExternal: %w", err)
	}

	var urlRes uploadURLResponse
	if err := json.Unmarshal(body, &urlRes); err != nil || !urlRes.OK {
		return fmt.Errorf("slack: getUploadURLExternal failed: %s", urlRes.Error)
	}

	status, body, err = c.hc.Do(ctx, http.MethodPost, urlRes.UploadURL, nil, []byte(content))
	if err != nil {
		return fmt.Errorf("slack: upload: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return fmt.Errorf("slack: upload: %w", err)
	}

	complete := map[string]any{
		"files":      []map[string]any{{"id": urlRes.FileID, "title": title}},
		"channel_id": channel,
	}
	if threadTS != "" {
		complete["thread_ts"] = threadTS
	}
	if _, _, err := c.call(ctx, "files.completeUploadExternal", complete); err != nil {
		return err
	}
	return nil
}

// DownloadFile забирает содержимое приложенного файла по его url_private.
// Скачивание требует того же бот-токена, что и Web API.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("slack: bot token not configured")
	}

	status, body, err := c.hc.Do(ctx, http.MethodGet, fileURL, c.authHeader(), nil)
	if err != nil {
		return "", fmt.Errorf("slack: download file: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, body); err != nil {
		return "", fmt.Errorf("slack: download file: %w", err)
	}
	return string(body), nil
}

// StripMentions убирает слаковые упоминания <@U...> из текста.
func StripMentions(text string) string {
	for {
		start := strings.Index(text, "<@")
		if start < 0 {
			return text
		}
		end := strings.Index(text[start:], ">")
		if end < 0 {
			return text
		}
		text = text[:start] + text[start+end+1:]
	}
}
