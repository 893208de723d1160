// Package llm — tool-calling цикл поверх взаимозаменяемых провайдеров
// моделей (anthropic | openai).
package llm

import (
	"context"
	"fmt"

	"github.com/joe-reitz/oss-moperator/internal/infra"
)

// Message — одна реплика диалога с точки зрения модели.
type Message struct {
	Role        string       // user | assistant | tool
	Content     string
	ToolCalls   []ToolCall   // только у assistant
	ToolResults []ToolResult // только у tool
}

// ToolCall — запрошенный моделью вызов инструмента.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult — результат вызова, возвращаемый модели.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// ToolSpec — описание инструмента в формате провайдера.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request — один ход диалога.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Response — ответ модели: текст и/или запрошенные вызовы инструментов.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider — один бекенд модели.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewProvider создает провайдера по конфигурации.
func NewProvider(cfg infra.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropic(cfg), nil
	case "openai":
		return newOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
