package domain

import (
	"errors"
	"time"
)

// Действия на кнопках approval-сообщения. Идентификаторы фиксированные,
// id записи едет отдельно — в value кнопки.
const (
	ActionApprove = "approve_operation"
	ActionDeny    = "deny_operation"
)

var (
	// ErrStoreUnavailable — Redis не сконфигурирован. Это состояние конфигурации,
	// а не сбой: workflow деградирует до "approvals unavailable".
	ErrStoreUnavailable = errors.New("approval store is not configured")

	// ErrNotFound — записи нет: истек TTL, уже обработана или никогда не существовала.
	// Эти случаи неразличимы по построению (жесткое удаление, без soft-delete).
	ErrNotFound = errors.New("pending approval not found")
)

// PendingApproval — единица отложенной работы: гейтнутая операция,
// ожидающая решения человека. Живет в store до резолюции или истечения TTL.
type PendingApproval struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"tool_name"`
	Args        map[string]any `json:"args"`
	RequesterID string         `json:"requester_id"`
	Channel     string         `json:"channel"`
	ThreadTS    string         `json:"thread_ts"`
	PromptTS    string         `json:"prompt_ts,omitempty"` // Проставляется один раз после поста промпта
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Interaction — входящее событие нажатия кнопки Approve/Deny.
// MessageText нужен только для legacy-сопоставления по описанию.
type Interaction struct {
	ActionID    string // ActionApprove | ActionDeny
	ActionValue string // id записи (может быть пуст у старых сообщений)
	ClickerID   string
	Channel     string
	MessageTS   string
	MessageText string
}
