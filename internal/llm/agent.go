package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

const (
	defaultMaxSteps  = 10
	defaultMaxTokens = 4096
)

// Agent гоняет tool-calling цикл: модель просит инструменты, мы исполняем
// и возвращаем результаты, пока модель не ответит текстом или не кончится
// лимит шагов.
type Agent struct {
	provider  Provider
	maxSteps  int
	maxTokens int
	logger    *zap.Logger
}

func NewAgent(provider Provider, maxSteps, maxTokens int, logger *zap.Logger) *Agent {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Agent{
		provider:  provider,
		maxSteps:  maxSteps,
		maxTokens: maxTokens,
		logger:    logger.Named("agent"),
	}
}

// Run исполняет один пользовательский запрос поверх истории диалога.
// Реестр приходит уже обернутый approval-гейтом под конкретного автора.
func (a *Agent) Run(ctx context.Context, system string, history []Message, userText string, registry *tools.Registry) (string, error) {
	messages := append(append([]Message{}, history...), Message{Role: "user", Content: userText})

	specs := toolSpecs(registry)
	for step := 0; step < a.maxSteps; step++ {
		res, err := a.provider.Complete(ctx, Request{
			System:    system,
			Messages:  messages,
			Tools:     specs,
			MaxTokens: a.maxTokens,
		})
		if err != nil {
			return "", err
		}

		if len(res.ToolCalls) == 0 {
			return res.Text, nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   res.Text,
			ToolCalls: res.ToolCalls,
		})

		results := make([]ToolResult, 0, len(res.ToolCalls))
		for _, call := range res.ToolCalls {
			result := registry.Execute(ctx, call.Name, call.Args)
			a.logger.Info("tool executed",
				zap.String("tool", call.Name),
				zap.Bool("success", result.Success),
				zap.Bool("pending_approval", result.PendingApproval))

			encoded, err := json.Marshal(result)
			if err != nil {
				encoded = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
			}
			results = append(results, ToolResult{
				CallID:  call.ID,
				Content: string(encoded),
				IsError: !result.Success && !result.PendingApproval,
			})
		}
		messages = append(messages, Message{Role: "tool", ToolResults: results})
	}

	return "", fmt.Errorf("llm: tool loop exceeded %d steps", a.maxSteps)
}

func toolSpecs(registry *tools.Registry) []ToolSpec {
	all := registry.All()
	specs := make([]ToolSpec, 0, len(all))
	for _, t := range all {
		specs = append(specs, ToolSpec{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return specs
}
