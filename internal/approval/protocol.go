package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/audit"
	"github.com/joe-reitz/oss-moperator/internal/domain"
	"github.com/joe-reitz/oss-moperator/internal/infra"
	"github.com/joe-reitz/oss-moperator/internal/tools"
)

// Button — интерактивный элемент промпта. ActionID фиксированный,
// id заявки едет в Value.
type Button struct {
	ActionID string
	Text     string
	Style    string // primary | danger
	Value    string
}

// Chat — узкий интерфейс чат-платформы, который нужен протоколу.
// Реализуется Slack-клиентом из connectors/slack.
type Chat interface {
	PostMessage(ctx context.Context, channel, threadTS, text string, buttons []Button) (string, error)
	UpdateMessage(ctx context.Context, channel, ts, text string) error
	PostEphemeral(ctx context.Context, channel, userID, text string) error
}

// Directory резолвит актора чата в отображаемое имя для промпта.
type Directory interface {
	DisplayName(ctx context.Context, userID string) string
}

// Authorizer — политика авторизации (см. internal/policy).
// Проверяется дважды: на авторе запроса и на кликере.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID string) (bool, error)
}

// Executor — единая точка исполнения одобренной операции.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) tools.Result
}

// Auditor принимает события журнала решений (асинхронно, non-blocking).
type Auditor interface {
	Log(event audit.Event)
}

// Engine — машина состояний одной гейтнутой операции:
// Requested → Stored → Prompted → {Approved, Denied, Expired}.
// Expired неявный: запись просто исчезает из store по TTL.
type Engine struct {
	store    Store
	chat     Chat
	dir      Directory
	auth     Authorizer
	executor Executor
	auditor  Auditor
	metrics  *Metrics
	logger   *zap.Logger

	ttl             time.Duration
	approverMention string
}

func NewEngine(
	store Store,
	chat Chat,
	dir Directory,
	auth Authorizer,
	executor Executor,
	auditor Auditor,
	metrics *Metrics,
	ttl time.Duration,
	approverGroupID string,
	logger *zap.Logger,
) *Engine {
	mention := "@approvers"
	if approverGroupID != "" {
		mention = fmt.Sprintf("<!subteam^%s>", approverGroupID)
	}
	return &Engine{
		store:           store,
		chat:            chat,
		dir:             dir,
		auth:            auth,
		executor:        executor,
		auditor:         auditor,
		metrics:         metrics,
		logger:          logger.Named("approval"),
		ttl:             ttl,
		approverMention: mention,
	}
}

// Request выполняет переходы Requested → Stored → Prompted.
// Возвращает результат для агента; сама операция на этот момент не исполнена.
func (e *Engine) Request(ctx context.Context, toolName string, args map[string]any, scope RequestScope) tools.Result {
	description := Describe(toolName, args)

	app := &domain.PendingApproval{
		ID:          uuid.NewString(),
		ToolName:    toolName,
		Args:        args,
		RequesterID: scope.RequesterID,
		Channel:     scope.Channel,
		ThreadTS:    scope.ThreadTS,
		Description: description,
		CreatedAt:   time.Now(),
	}

	if err := e.store.Put(ctx, app); err != nil {
		// Состояние конфигурации, не сбой: операция не исполнена и не поставлена
		// в очередь, пользователю явно сообщаем о недоступности workflow.
		e.logger.Error("failed to store pending approval", zap.Error(err))
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return tools.Failf("Approvals are unavailable: the approval workflow requires Redis. Set redis.addr in the config.")
		}
		return tools.Failf("Approvals are unavailable: %v", err)
	}

	requesterName := e.dir.DisplayName(ctx, scope.RequesterID)
	text := fmt.Sprintf("%s Approval needed from *%s*:\n\n*%s*\n\n_This request will expire in %d minutes._",
		e.approverMention, requesterName, description, int(e.ttl.Minutes()))

	buttons := []Button{
		{ActionID: domain.ActionApprove, Text: "Approve", Style: "primary", Value: app.ID},
		{ActionID: domain.ActionDeny, Text: "Deny", Style: "danger", Value: app.ID},
	}

	promptTS, err := e.chat.PostMessage(ctx, scope.Channel, scope.ThreadTS, text, buttons)
	if err != nil {
		// Известный пробел: запись уже в store и доживет до TTL, откат не делаем.
		e.logger.Warn("approval prompt post failed; record remains until TTL",
			zap.String("approval_id", app.ID), zap.Error(err))
	} else if err := e.store.SetPromptRef(ctx, app.ID, promptTS); err != nil {
		e.logger.Warn("failed to attach prompt ref", zap.String("approval_id", app.ID), zap.Error(err))
	}

	e.metrics.Requested.Inc()
	e.logger.Info("approval requested",
		zap.String("approval_id", app.ID),
		zap.String("tool", toolName),
		zap.String("requester", scope.RequesterID))

	return tools.Result{
		Success:         true,
		PendingApproval: true,
		Message:         fmt.Sprintf("Your request to %s has been submitted for approval.", strings.ToLower(description)),
	}
}

// Resolve обрабатывает асинхронный клик Approve/Deny. Любой исход
// конвертируется в сообщение в чате; наружу ошибка уходит только для лога.
func (e *Engine) Resolve(ctx context.Context, inter domain.Interaction) error {
	if inter.ActionID != domain.ActionApprove && inter.ActionID != domain.ActionDeny {
		return nil // не наш action — игнорируем молча
	}

	// 1. Авторизация кликера. Запись не трогаем: заявка остается живой
	// и решаемой кем-то другим.
	authorized, err := e.auth.IsAuthorized(ctx, inter.ClickerID)
	if err != nil {
		e.logger.Warn("clicker authorization check failed", zap.Error(err))
	}
	if !authorized {
		e.metrics.Resolutions.WithLabelValues("unauthorized_click").Inc()
		if err := e.chat.PostEphemeral(ctx, inter.Channel, inter.ClickerID,
			"You are not authorized to approve or deny operations. Only authorized users can do this."); err != nil {
			e.logger.Warn("failed to post unauthorized notice", zap.Error(err))
		}
		return nil
	}

	// 2. Находим заявку: по id из кнопки, для старых сообщений — скан
	// по вхождению описания в текст промпта.
	app := e.locate(ctx, inter)
	if app == nil {
		e.markExpired(ctx, inter)
		return nil
	}

	// 3. Claim — единственный арбитр exactly-once: из конкурирующих кликов
	// дальше проходит ровно один, остальные видят заявку как истекшую.
	claimed, err := e.store.Claim(ctx, app.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Error("claim failed", zap.String("approval_id", app.ID), zap.Error(err))
		}
		e.markExpired(ctx, inter)
		return nil
	}

	e.metrics.ResolutionSeconds.Observe(time.Since(claimed.CreatedAt).Seconds())

	if inter.ActionID == domain.ActionApprove {
		e.approve(ctx, claimed, inter)
	} else {
		e.deny(ctx, claimed, inter)
	}
	return nil
}

// locate возвращает живую заявку для клика или nil (истекла/уже обработана).
func (e *Engine) locate(ctx context.Context, inter domain.Interaction) *domain.PendingApproval {
	if inter.ActionValue != "" {
		app, err := e.store.Get(ctx, inter.ActionValue)
		if err == nil {
			return app
		}
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Error("approval lookup failed", zap.Error(err))
		}
		return nil
	}

	// Legacy-путь: в кнопке нет id, сопоставляем по тексту сообщения.
	// Никогда не арбитр исполнения — только поиск кандидата перед Claim.
	var found *domain.PendingApproval
	err := e.store.ScanAll(ctx, func(app *domain.PendingApproval) bool {
		if app.Description != "" && strings.Contains(inter.MessageText, app.Description) {
			found = app
			return false
		}
		return true
	})
	if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
		e.logger.Error("approval scan failed", zap.Error(err))
	}
	return found
}

// markExpired лениво правит промпт: кнопки больше ничего не решают.
func (e *Engine) markExpired(ctx context.Context, inter domain.Interaction) {
	e.metrics.Resolutions.WithLabelValues("expired_click").Inc()
	if err := e.chat.UpdateMessage(ctx, inter.Channel, inter.MessageTS,
		"_This approval request has expired or was already handled._"); err != nil {
		e.logger.Warn("failed to mark prompt expired", zap.Error(err))
	}
}

func (e *Engine) approve(ctx context.Context, app *domain.PendingApproval, inter domain.Interaction) {
	start := time.Now()

	if err := e.chat.UpdateMessage(ctx, inter.Channel, inter.MessageTS,
		fmt.Sprintf("_Approved by <@%s>. Executing..._", inter.ClickerID)); err != nil {
		e.logger.Warn("failed to update prompt", zap.Error(err))
	}

	// Запись уже изъята Claim'ом: повторов при падении исполнения не будет,
	// неудавшуюся одобренную операцию придется запрашивать заново.
	result := e.executor.Execute(ctx, app.ToolName, app.Args)

	var text string
	if result.Success {
		payload, _ := json.MarshalIndent(result, "", "  ")
		text = fmt.Sprintf("Approved by <@%s>.\n\n*%s* — completed.\n```\n%s\n```",
			inter.ClickerID, app.Description, payload)
	} else {
		text = fmt.Sprintf("Approved by <@%s>, but the operation failed:\n```\n%s\n```",
			inter.ClickerID, result.Error)
	}
	if _, err := e.chat.PostMessage(ctx, app.Channel, app.ThreadTS, text, nil); err != nil {
		e.logger.Warn("failed to post execution outcome", zap.Error(err))
	}

	e.metrics.Resolutions.WithLabelValues("approved").Inc()
	e.audit(ctx, app, inter.ClickerID, "approved", result, time.Since(start))
}

func (e *Engine) deny(ctx context.Context, app *domain.PendingApproval, inter domain.Interaction) {
	if err := e.chat.UpdateMessage(ctx, inter.Channel, inter.MessageTS,
		fmt.Sprintf("_Denied by <@%s>._\n\n~%s~", inter.ClickerID, app.Description)); err != nil {
		e.logger.Warn("failed to update prompt", zap.Error(err))
	}

	notice := fmt.Sprintf("Your request to %s was denied by <@%s>.",
		strings.ToLower(app.Description), inter.ClickerID)
	if _, err := e.chat.PostMessage(ctx, app.Channel, app.ThreadTS, notice, nil); err != nil {
		e.logger.Warn("failed to notify requester", zap.Error(err))
	}

	e.metrics.Resolutions.WithLabelValues("denied").Inc()
	e.audit(ctx, app, inter.ClickerID, "denied", tools.Result{Success: true}, 0)
}

func (e *Engine) audit(ctx context.Context, app *domain.PendingApproval, actorID, decision string, result tools.Result, took time.Duration) {
	if e.auditor == nil {
		return
	}

	status := "SUCCESS"
	if !result.Success {
		status = "FAILED"
	}
	e.auditor.Log(audit.Event{
		ID:          uuid.NewString(),
		TraceID:     infra.TraceID(ctx),
		ApprovalID:  app.ID,
		RequesterID: app.RequesterID,
		ActorID:     actorID,
		ToolName:    app.ToolName,
		Description: app.Description,
		Decision:    decision,
		Status:      status,
		Error:       result.Error,
		Payload:     app.Args,
		DurationMs:  took.Milliseconds(),
		Timestamp:   time.Now(),
	})
}
