package audit

import "time"

// Event — одно событие журнала решений approval workflow.
type Event struct {
	ID          string         `json:"id"`           // UUID события
	TraceID     string         `json:"trace_id"`     // Сквозной ID запроса
	ApprovalID  string         `json:"approval_id"`  // Какая заявка
	RequesterID string         `json:"requester_id"` // Кто просил
	ActorID     string         `json:"actor_id"`     // Кто решил (кликер)
	ToolName    string         `json:"tool_name"`    // Что хотели сделать
	Description string         `json:"description"`  // Человекочитаемое описание
	Payload     map[string]any `json:"payload"`      // С какими данными

	// Результат
	Decision   string    `json:"decision"` // "approved" | "denied"
	Status     string    `json:"status"`   // "SUCCESS" | "FAILED"
	Error      string    `json:"error"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Discard — no-op приемник для окружений без базы аудита.
type Discard struct{}

func (Discard) Log(Event) {}
