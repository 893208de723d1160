package linear

import (
	"context"
	"fmt"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

func (c *Client) Tools() []tools.Tool {
	return []tools.Tool{c.createIssueTool(), c.queryIssuesTool()}
}

func (c *Client) createIssueTool() tools.Tool {
	return tools.Tool{
		Name:        "createLinearIssue",
		Description: "Create an issue in the team's Linear triage queue.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"title"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			title, err := tools.StringArg(args, "title")
			if err != nil {
				return tools.Fail(err)
			}
			issue, err := c.CreateIssue(ctx, title, tools.OptStringArg(args, "description"), nil)
			if err != nil {
				return tools.Fail(err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Created %s: %s", issue.Identifier, issue.URL),
				Data:    map[string]any{"identifier": issue.Identifier, "url": issue.URL},
			}
		},
	}
}

func (c *Client) queryIssuesTool() tools.Tool {
	return tools.Tool{
		Name:        "queryLinearIssues",
		Description: "Search the team's Linear issues by title.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"search": map[string]any{"type": "string"},
				"limit":  map[string]any{"type": "number"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			issues, err := c.QueryIssues(ctx, tools.OptStringArg(args, "search"), tools.IntArg(args, "limit", 10))
			if err != nil {
				return tools.Fail(err)
			}
			out := make([]map[string]any, 0, len(issues))
			for _, issue := range issues {
				out = append(out, map[string]any{
					"identifier": issue.Identifier,
					"title":      issue.Title,
					"state":      issue.State,
					"url":        issue.URL,
				})
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Found %d issue(s).", len(issues)),
				Data:    map[string]any{"issues": out},
			}
		},
	}
}
