package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joe-reitz/oss-moperator/internal/connectors"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

const openAIDefaultURL = "https://api.openai.com"

type openAIProvider struct {
	cfg infra.LLMConfig
	hc  *connectors.Client
}

func newOpenAI(cfg infra.LLMConfig) *openAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIDefaultURL
	}
	return &openAIProvider{cfg: cfg, hc: connectors.NewClient("openai")}
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := []openAIMessage{{Role: "system", Content: req.System}}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "tool":
			for _, tr := range msg.ToolResults {
				messages = append(messages, openAIMessage{
					Role: "tool", Content: tr.Content, ToolCallID: tr.CallID,
				})
			}
		case "assistant":
			out := openAIMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("openai: marshal tool arguments: %w", err)
				}
				call := openAIToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				call.Function.Arguments = string(args)
				out.ToolCalls = append(out.ToolCalls, call)
			}
			messages = append(messages, out)
		default:
			messages = append(messages, openAIMessage{Role: "user", Content: msg.Content})
		}
	}

	toolDefs := make([]map[string]any, 0, len(req.Tools))
	for _, t := range req.Tools {
		toolDefs = append(toolDefs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Schema,
			},
		})
	}

	payload := map[string]any{
		"model":                 p.cfg.Model,
		"messages":              messages,
		"max_completion_tokens": req.MaxTokens,
	}
	if len(toolDefs) > 0 {
		payload["tools"] = toolDefs
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.cfg.APIKey)
	h.Set("Content-Type", "application/json")

	status, respBody, err := p.hc.Do(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/chat/completions", h, body)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if err := connectors.ErrorFromStatus(status, respBody); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	var res struct {
		Choices []struct {
			Message openAIMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices")
	}

	msg := res.Choices[0].Message
	out := &Response{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("openai: decode tool arguments: %w", err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Args: args})
	}
	return out, nil
}
