package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

// Tools возвращает инструменты Salesforce: read-набор плюс пять
// write-операций (последние оборачивает approval-гейт при сборке реестра).
func (c *Client) Tools() []tools.Tool {
	return []tools.Tool{
		c.queryTool(),
		c.describeTool(),
		c.describeGlobalTool(),
		c.updateTool(),
		c.createTool(),
		c.deleteTool(),
		c.bulkUpdateTool(),
		c.addToCampaignTool(),
	}
}

func (c *Client) queryTool() tools.Tool {
	return tools.Tool{
		Name:        "querySalesforce",
		Description: "Run a SOQL query against Salesforce. Use describeSalesforceObject first to learn field names.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"soql": map[string]any{"type": "string", "description": "SOQL query, e.g. SELECT Id, Name FROM Account LIMIT 10"},
			},
			"required": []string{"soql"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			soql, err := tools.StringArg(args, "soql")
			if err != nil {
				return tools.Fail(err)
			}
			res, err := c.Query(ctx, soql)
			if err != nil {
				return tools.Fail(err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Query returned %d record(s).", res.TotalSize),
				Data:    map[string]any{"totalSize": res.TotalSize, "records": res.Records},
			}
		},
	}
}

func (c *Client) describeTool() tools.Tool {
	return tools.Tool{
		Name:        "describeSalesforceObject",
		Description: "List the fields of a Salesforce object type (name, label, type, updateable).",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"objectName": map[string]any{"type": "string", "description": "sObject API name, e.g. Account, Contact, Opportunity"},
			},
			"required": []string{"objectName"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			objectName, err := tools.StringArg(args, "objectName")
			if err != nil {
				return tools.Fail(err)
			}
			fields, err := c.Describe(ctx, objectName)
			if err != nil {
				return tools.Fail(err)
			}
			out := make([]map[string]any, 0, len(fields))
			for _, f := range fields {
				out = append(out, map[string]any{
					"name":       f.Name,
					"label":      f.Label,
					"type":       f.Type,
					"updateable": f.Updateable,
				})
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("%s has %d field(s).", objectName, len(fields)),
				Data:    map[string]any{"objectName": objectName, "fields": out},
			}
		},
	}
}

func (c *Client) describeGlobalTool() tools.Tool {
	return tools.Tool{
		Name:        "listSalesforceObjects",
		Description: "List queryable Salesforce object types available in this org.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Execute: func(ctx context.Context, _ map[string]any) tools.Result {
			names, err := c.DescribeGlobal(ctx)
			if err != nil {
				return tools.Fail(err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("%d queryable object type(s).", len(names)),
				Data:    map[string]any{"objects": names},
			}
		},
	}
}

func (c *Client) updateTool() tools.Tool {
	return tools.Tool{
		Name:        "updateSalesforceRecord",
		Description: "Update fields on a single Salesforce record. This is a write operation.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"objectName": map[string]any{"type": "string"},
				"recordId":   map[string]any{"type": "string"},
				"data":       map[string]any{"type": "object", "description": "Field name to new value"},
			},
			"required": []string{"objectName", "recordId", "data"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			objectName, err := tools.StringArg(args, "objectName")
			if err != nil {
				return tools.Fail(err)
			}
			recordID, err := tools.StringArg(args, "recordId")
			if err != nil {
				return tools.Fail(err)
			}
			fields, err := tools.MapArg(args, "data")
			if err != nil {
				return tools.Fail(err)
			}
			if err := c.Update(ctx, objectName, recordID, fields); err != nil {
				return tools.Fail(err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Updated %s record %s.", objectName, recordID),
				Data:    map[string]any{"objectName": objectName, "recordId": recordID},
			}
		},
	}
}

func (c *Client) createTool() tools.Tool {
	return tools.Tool{
		Name:        "createSalesforceRecord",
		Description: "Create a new Salesforce record. This is a write operation.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"objectName": map[string]any{"type": "string"},
				"data":       map[string]any{"type": "object"},
			},
			"required": []string{"objectName", "data"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			objectName, err := tools.StringArg(args, "objectName")
			if err != nil {
				return tools.Fail(err)
			}
			fields, err := tools.MapArg(args, "data")
			if err != nil {
				return tools.Fail(err)
			}
			id, err := c.Create(ctx, objectName, fields)
			if err != nil {
				return tools.Fail(err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Created %s record %s.", objectName, id),
				Data:    map[string]any{"objectName": objectName, "recordId": id},
			}
		},
	}
}

func (c *Client) deleteTool() tools.Tool {
	return tools.Tool{
		Name:        "deleteSalesforceRecord",
		Description: "Delete a single Salesforce record. This is a destructive write operation.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"objectName": map[string]any{"type": "string"},
				"recordId":   map[string]any{"type": "string"},
			},
			"required": []string{"objectName", "recordId"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			objectName, err := tools.StringArg(args, "objectName")
			if err != nil {
				return tools.Fail(err)
			}
			recordID, err := tools.StringArg(args, "recordId")
			if err != nil {
				return tools.Fail(err)
			}
			if err := c.Delete(ctx, objectName, recordID); err != nil {
				return tools.Fail(err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Deleted %s record %s.", objectName, recordID),
			}
		},
	}
}

func (c *Client) bulkUpdateTool() tools.Tool {
	return tools.Tool{
		Name:        "bulkUpdateRecords",
		Description: "Update many Salesforce records at once. Each record must include its Id. This is a write operation.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"objectName": map[string]any{"type": "string"},
				"records": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "object"},
					"description": "Records to update; each must include an Id field",
				},
			},
			"required": []string{"objectName", "records"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			objectName, err := tools.StringArg(args, "objectName")
			if err != nil {
				return tools.Fail(err)
			}
			raw, err := tools.SliceArg(args, "records")
			if err != nil {
				return tools.Fail(err)
			}
			records := make([]BulkRecord, 0, len(raw))
			for i, item := range raw {
				m, ok := item.(map[string]any)
				if !ok {
					return tools.Failf("records[%d] must be an object", i)
				}
				if id, _ := m["Id"].(string); id == "" {
					return tools.Failf("records[%d] is missing an Id field", i)
				}
				records = append(records, BulkRecord(m))
			}

			updated, failures, err := c.BulkUpdate(ctx, objectName, records)
			if err != nil {
				return tools.Fail(err)
			}
			res := tools.Result{
				Success: len(failures) == 0,
				Message: fmt.Sprintf("Updated %d of %d %s record(s).", updated, len(records), objectName),
				Data:    map[string]any{"updated": updated, "failed": len(failures)},
			}
			if len(failures) > 0 {
				res.Error = formatBulkFailures(failures)
			}
			return res
		},
	}
}

func (c *Client) addToCampaignTool() tools.Tool {
	return tools.Tool{
		Name:        "addContactsToCampaign",
		Description: "Add contacts to a Salesforce campaign as campaign members. This is a write operation.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"campaignId": map[string]any{"type": "string"},
				"contactIds": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{"campaignId", "contactIds"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			campaignID, err := tools.StringArg(args, "campaignId")
			if err != nil {
				return tools.Fail(err)
			}
			contactIDs, err := tools.StringSliceArg(args, "contactIds")
			if err != nil {
				return tools.Fail(err)
			}

			added, skipped, failures, err := c.AddToCampaign(ctx, campaignID, contactIDs)
			if err != nil {
				return tools.Fail(err)
			}
			msg := fmt.Sprintf("Added %d contact(s) to campaign %s.", added, campaignID)
			if skipped > 0 {
				msg += fmt.Sprintf(" %d already in the campaign.", skipped)
			}
			res := tools.Result{
				Success: len(failures) == 0,
				Message: msg,
				Data:    map[string]any{"added": added, "skipped": skipped, "failed": len(failures)},
			}
			if len(failures) > 0 {
				res.Error = formatBulkFailures(failures)
			}
			return res
		},
	}
}

func formatBulkFailures(failures []BulkError) string {
	const maxShown = 5
	var b strings.Builder
	fmt.Fprintf(&b, "%d record(s) failed:", len(failures))
	for i, f := range failures {
		if i == maxShown {
			fmt.Fprintf(&b, " and %d more", len(failures)-maxShown)
			break
		}
		fmt.Fprintf(&b, " %s (%s);", f.ID, f.Message)
	}
	return b.String()
}
