package hubspot

import (
	"context"
	"fmt"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

func (c *Client) Tools() []tools.Tool {
	return []tools.Tool{c.searchTool(), c.getTool()}
}

func (c *Client) searchTool() tools.Tool {
	return tools.Tool{
		Name:        "searchHubspotContacts",
		Description: "Search HubSpot contacts by email, name or company.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "number", "description": "Max results, default 10"},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			query, err := tools.StringArg(args, "query")
			if err != nil {
				return tools.Fail(err)
			}
			total, contacts, err := c.SearchContacts(ctx, query, tools.IntArg(args, "limit", 10))
			if err != nil {
				return tools.Fail(err)
			}
			out := make([]map[string]any, 0, len(contacts))
			for _, contact := range contacts {
				out = append(out, map[string]any{"id": contact.ID, "properties": contact.Properties})
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Found %d contact(s).", total),
				Data:    map[string]any{"total": total, "contacts": out},
			}
		},
	}
}

func (c *Client) getTool() tools.Tool {
	return tools.Tool{
		Name:        "getHubspotContact",
		Description: "Fetch a single HubSpot contact by its id.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contactId": map[string]any{"type": "string"},
			},
			"required": []string{"contactId"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			id, err := tools.StringArg(args, "contactId")
			if err != nil {
				return tools.Fail(err)
			}
			contact, err := c.GetContact(ctx, id)
			if err != nil {
				return tools.Fail(err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Contact %s.", contact.ID),
				Data:    map[string]any{"id": contact.ID, "properties": contact.Properties},
			}
		},
	}
}
