package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

const anthropicDefaultURL = "https://api.anthropic.com"

type anthropicProvider struct {
	cfg infra.LLMConfig
	hc  *connectors.Client
}

func newAnthropic(cfg infra.LLMConfig) *anthropicProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicDefaultURL
	}
	return &anthropicProvider{cfg: cfg, hc: connectors.NewClient("anthropic")}
}

// Блоки контента Messages API
type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "tool":
			// Результаты инструментов едут user-сообщением с tool_result блоками
			blocks := make([]anthropicBlock, 0, len(msg.ToolResults))
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, anthropicBlock{
					Type:      "tool_result",
					ToolUseID: tr.CallID,
					Content:   tr.Content,
					IsError:   tr.IsError,
				})
			}
			messages = append(messages, anthropicMessage{Role: "user", Content: blocks})
		case "assistant":
			var blocks []anthropicBlock
			if msg.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("anthropic: marshal tool input: %w", err)
				}
				blocks = append(blocks, anthropicBlock{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input,
				})
			}
			messages = append(messages, anthropicMessage{Role: "assistant", Content: blocks})
		default:
			messages = append(messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}

	toolDefs := make([]map[string]any, 0, len(req.Tools))
	for _, t := range req.Tools {
		toolDefs = append(toolDefs, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.Schema,
		})
	}

	payload := map[string]any{
		"model":      p.cfg.Model,
		"max_tokens": req.MaxTokens,
		"system":     req.System,
		"messages":   messages,
	}
	if len(toolDefs) > 0 {
		payload["tools"] = toolDefs
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	h := http.Header{}
	h.Set("x-api-key", p.cfg.APIKey)
	h.Set("anthropic-version", "2023-06-01")
	h.Set("Content-Type", "application/json")

	status, respBody, err := p.hc.Do(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/messages", h, body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, respBody); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var res struct {
		Content []anthropicBlock `json:"content"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	out := &Response{}
	for _, block := range res.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic: decode tool input: %w", err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	return out, nil
}
