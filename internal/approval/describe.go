package approval

import "fmt"

// Закрытый набор гейтнутых операций записи. Агент может звать что угодно,
// но только эти пять проходят через approval workflow.
const (
	ToolUpdateRecord  = "updateSalesforceRecord"
	ToolCreateRecord  = "createSalesforceRecord"
	ToolDeleteRecord  = "deleteSalesforceRecord"
	ToolBulkUpdate    = "bulkUpdateRecords"
	ToolAddToCampaign = "addContactsToCampaign"
)

// описание — чистая функция от (toolName, args): без I/O, детерминированная.
// Строка служит и текстом для апрувера, и legacy-ключом сопоставления
// клика с записью, поэтому менять формат нельзя без миграции.
type describeFunc func(args map[string]any) string

var descriptors = map[string]describeFunc{
	ToolUpdateRecord: func(args map[string]any) string {
		return fmt.Sprintf("Update %s record `%s`", argString(args, "objectName"), argString(args, "recordId"))
	},
	ToolCreateRecord: func(args map[string]any) string {
		return fmt.Sprintf("Create a new %s record", argString(args, "objectName"))
	},
	ToolDeleteRecord: func(args map[string]any) string {
		return fmt.Sprintf("Delete %s record `%s`", argString(args, "objectName"), argString(args, "recordId"))
	},
	ToolBulkUpdate: func(args map[string]any) string {
		count := argLen(args, "records")
		return fmt.Sprintf("Bulk update %d %s record%s", count, argString(args, "objectName"), plural(count))
	},
	ToolAddToCampaign: func(args map[string]any) string {
		count := argLen(args, "contactIds")
		return fmt.Sprintf("Add %d contact%s to campaign `%s`", count, plural(count), argString(args, "campaignId"))
	},
}

// Describe возвращает однострочное человекочитаемое описание операции.
// Неизвестные имена не являются ошибкой — общий fallback.
func Describe(toolName string, args map[string]any) string {
	if fn, ok := descriptors[toolName]; ok {
		return fn(args)
	}
	return fmt.Sprintf("Execute `%s`", toolName)
}

// IsGated сообщает, входит ли инструмент в закрытый гейтнутый набор.
func IsGated(toolName string) bool {
	_, ok := descriptors[toolName]
	return ok
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// argLen достает кардинальность из аргументов: длину слайса по ключу.
// JSON-декодер отдает []any, но на прямых вызовах из кода встречаются
// и типизированные слайсы.
func argLen(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	case []map[string]any:
		return len(v)
	default:
		return 0
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
