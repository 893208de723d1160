package marketo

import (
	"context"
	"fmt"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

func (c *Client) Tools() []tools.Tool {
	return []tools.Tool{c.findLeadsTool(), c.listsTool()}
}

func (c *Client) findLeadsTool() tools.Tool {
	return tools.Tool{
		Name:        "findMarketoLeads",
		Description: "Find Marketo leads by exact email address.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"email": map[string]any{"type": "string"},
			},
			"required": []string{"email"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			email, err := tools.StringArg(args, "email")
			if err != nil {
				return tools.Fail(err)
			}
			leads, err := c.FindLeadsByEmail(ctx, email)
			if err != nil {
				return tools.Fail(err)
			}
			out := make([]map[string]any, 0, len(leads))
			for _, lead := range leads {
				out = append(out, map[string]any{
					"id":        lead.ID,
					"email":     lead.Email,
					"firstName": lead.FirstName,
					"lastName":  lead.LastName,
					"company":   lead.Company,
				})
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Found %d lead(s) for %s.", len(leads), email),
				Data:    map[string]any{"leads": out},
			}
		},
	}
}

func (c *Client) listsTool() tools.Tool {
	return tools.Tool{
		Name:        "listMarketoStaticLists",
		Description: "List Marketo static lists.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Execute: func(ctx context.Context, _ map[string]any) tools.Result {
			lists, err := c.StaticLists(ctx)
			if err != nil {
				return tools.Fail(err)
			}
			out := make([]map[string]any, 0, len(lists))
			for _, list := range lists {
				out = append(out, map[string]any{"id": list.ID, "name": list.Name})
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("%d static list(s).", len(lists)),
				Data:    map[string]any{"lists": out},
			}
		},
	}
}
