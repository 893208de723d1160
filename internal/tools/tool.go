package tools

import (
	"context"
	"fmt"
	"sort"
)

// Result — структурированный результат выполнения инструмента.
// Инструменты никогда не «роняют» агента: любая ошибка вендора
// превращается в Result{Success: false}.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// PendingApproval = true, когда операция не выполнена,
	// а отправлена на апрув.
	PendingApproval bool `json:"pending_approval,omitempty"`
}

// Fail упаковывает ошибку в отрицательный результат.
func Fail(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Failf форматирует отрицательный результат.
func Failf(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool — один инструмент, доступный агенту.
// Schema — JSON Schema входных аргументов (как его видит модель).
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Execute     func(ctx context.Context, args map[string]any) Result
}

// Registry — набор инструментов текущего запроса.
// Собирается заново на каждый входящий запрос: гейтнутые обертки
// замыкаются на адресацию (канал, тред, автор).
type Registry struct {
	byName map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register добавляет инструмент. Повторная регистрация имени перезаписывает
// предыдущий вариант — этим пользуется гейт-обертка.
func (r *Registry) Register(t Tool) {
	r.byName[t.Name] = t
}

// Get возвращает инструмент по имени.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names возвращает отсортированный список имен (для промпта и логов).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All возвращает инструменты в стабильном порядке.
func (r *Registry) All() []Tool {
	all := make([]Tool, 0, len(r.byName))
	for _, name := range r.Names() {
		all = append(all, r.byName[name])
	}
	return all
}

// Execute реализует исполнитель операций: единая точка входа, через которую
// одобренная операция выполняется против вендорской системы.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Result {
	t, ok := r.byName[name]
	if !ok {
		return Failf("tool %q not found", name)
	}
	return t.Execute(ctx, args)
}
