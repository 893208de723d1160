package approval

import (
	"context"

	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

// gatedOp — строка диспетч-таблицы закрытого набора: откуда брать
// кардинальность операции. Пустой countKey = объемных лимитов нет.
type gatedOp struct {
	countKey string
}

var gatedOps = map[string]gatedOp{
	ToolUpdateRecord:  {},
	ToolCreateRecord:  {},
	ToolDeleteRecord:  {},
	ToolBulkUpdate:    {countKey: "records"},
	ToolAddToCampaign: {countKey: "contactIds"},
}

// Limits — двухуровневые лимиты на объем массовых операций.
type Limits struct {
	Authorized   int // прямое исполнение
	Unauthorized int // через апрув (строже)
}

// RequestScope — адресация текущего запроса, на которую замыкаются
// гейтнутые обертки: куда постить промпт и от чьего имени просить.
type RequestScope struct {
	Channel     string
	ThreadTS    string
	RequesterID string
}

// Gate собирает request-scoped набор инструментов: гейтнутые операции
// оборачиваются ветвлением по авторизации, остальные проходят как есть.
type Gate struct {
	engine *Engine
	limits Limits
	logger *zap.Logger
}

func NewGate(engine *Engine, limits Limits, logger *zap.Logger) *Gate {
	return &Gate{
		engine: engine,
		limits: limits,
		logger: logger.Named("gate"),
	}
}

// ForRequest строит новый Registry под конкретный запрос. Базовый набор
// не мутируется: обертки живут ровно один запрос.
func (g *Gate) ForRequest(base *tools.Registry, scope RequestScope, authorized bool) *tools.Registry {
	wrapped := tools.NewRegistry()

	for _, t := range base.All() {
		op, gated := gatedOps[t.Name]
		if !gated {
			// Не гейтнутый инструмент — сквозной проход без изменений.
			wrapped.Register(t)
			continue
		}
		wrapped.Register(g.wrap(t, op, scope, authorized))
	}
	return wrapped
}

func (g *Gate) wrap(t tools.Tool, op gatedOp, scope RequestScope, authorized bool) tools.Tool {
	original := t.Execute

	t.Execute = func(ctx context.Context, args map[string]any) tools.Result {
		count := -1
		if op.countKey != "" {
			count = argLen(args, op.countKey)
		}

		if authorized {
			// Авторизованный актор: исполняем сразу, но объем ограничен.
			if count > g.limits.Authorized {
				g.engine.metrics.LimitRejections.WithLabelValues("authorized").Inc()
				return tools.Failf(
					"Bulk operations are limited to %d records. You submitted %d.",
					g.limits.Authorized, count)
			}
			return original(ctx, args)
		}

		// Неавторизованный актор: прямого исполнения не бывает.
		if count > g.limits.Unauthorized {
			g.engine.metrics.LimitRejections.WithLabelValues("unauthorized").Inc()
			return tools.Failf(
				"Bulk operations are limited to %d records for non-authorized users. You submitted %d.",
				g.limits.Unauthorized, count)
		}

		g.logger.Info("gating write operation",
			zap.String("tool", t.Name),
			zap.String("requester", scope.RequesterID))
		return g.engine.Request(ctx, t.Name, args, scope)
	}
	return t
}
