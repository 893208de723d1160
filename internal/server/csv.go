package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

// Потолок выгрузки, выше него CSV обрезается
const csvExportRowLimit = 10_000

// exportCSVTool — серверный инструмент, замкнутый на адресацию треда:
// конвертирует записи в CSV и грузит файл прямо в разговор.
func (s *Server) exportCSVTool(channel, threadTS string) tools.Tool {
	return tools.Tool{
		Name:        "exportRecordsToCsv",
		Description: "Export a list of records as a CSV file attached to this conversation. Use when the user asks for an export or the result is too large to show inline.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"records": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "object"},
				},
				"filename": map[string]any{"type": "string", "description": "File name without extension"},
			},
			"required": []string{"records"},
		},
		Execute: func(ctx context.Context, args map[string]any) tools.Result {
			raw, err := tools.SliceArg(args, "records")
			if err != nil {
				return tools.Fail(err)
			}
			records := make([]map[string]any, 0, len(raw))
			for i, item := range raw {
				m, ok := item.(map[string]any)
				if !ok {
					return tools.Failf("records[%d] must be an object", i)
				}
				records = append(records, m)
			}
			if len(records) == 0 {
				return tools.Failf("records must not be empty")
			}

			total := len(records)
			truncated := total > csvExportRowLimit
			if truncated {
				records = records[:csvExportRowLimit]
			}

			content, err := recordsToCSV(records)
			if err != nil {
				return tools.Fail(err)
			}

			name := tools.OptStringArg(args, "filename")
			if name == "" {
				name = "export"
			}
			name += ".csv"

			title := fmt.Sprintf("Export (%d records)", total)
			if truncated {
				title = fmt.Sprintf("Export (%d of %d records)", csvExportRowLimit, total)
			}
			if err := s.slack.UploadFile(ctx, channel, threadTS, name, title, content); err != nil {
				return tools.Fail(err)
			}
			msg := fmt.Sprintf("Exported %d record(s) to %s.", len(records), name)
			if truncated {
				msg = fmt.Sprintf("Exported %d of %d record(s) to %s. The export was capped at %d rows; narrow the query for a full export.",
					csvExportRowLimit, total, name, csvExportRowLimit)
			}
			return tools.Result{
				Success: true,
				Message: msg,
			}
		},
	}
}

// recordsToCSV строит CSV с объединенным заголовком по всем записям.
// Колонки сортируются, Id принудительно первая.
func recordsToCSV(records []map[string]any) (string, error) {
	seen := map[string]bool{}
	var columns []string
	for _, rec := range records {
		for key := range rec {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "Id" {
			return true
		}
		if columns[j] == "Id" {
			return false
		}
		return columns[i] < columns[j]
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			row[i] = cellString(rec[col])
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON-числа: целые без десятичного хвоста
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
