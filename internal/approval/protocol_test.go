package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/audit"
	"github.com/joe-reitz/oss-moperator/internal/domain"
	"github.com/joe-reitz/oss-moperator/internal/tools"
)

// ─── Фейки ───

type chatPost struct {
	channel, threadTS, text string
	buttons                 []Button
}

type chatUpdate struct {
	channel, ts, text string
}

type fakeChat struct {
	mu         sync.Mutex
	posts      []chatPost
	updates    []chatUpdate
	ephemerals []string
	postErr    error
	nextTS     int
}

func (c *fakeChat) PostMessage(_ context.Context, channel, threadTS, text string, buttons []Button) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postErr != nil {
		return "", c.postErr
	}
	c.posts = append(c.posts, chatPost{channel, threadTS, text, buttons})
	c.nextTS++
	return fmt.Sprintf("100.%03d", c.nextTS), nil
}

func (c *fakeChat) UpdateMessage(_ context.Context, channel, ts, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, chatUpdate{channel, ts, text})
	return nil
}

func (c *fakeChat) PostEphemeral(_ context.Context, _, userID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ephemerals = append(c.ephemerals, userID+": "+text)
	return nil
}

type fakeDir struct{}

func (fakeDir) DisplayName(_ context.Context, userID string) string { return "Name of " + userID }

type staticAuth map[string]bool

func (a staticAuth) IsAuthorized(_ context.Context, userID string) (bool, error) {
	return a[userID], nil
}

type fakeExecutor struct {
	calls  int64
	result tools.Result

	mu       sync.Mutex
	lastName string
	lastArgs map[string]any
}

func (e *fakeExecutor) Execute(_ context.Context, name string, args map[string]any) tools.Result {
	atomic.AddInt64(&e.calls, 1)
	e.mu.Lock()
	e.lastName, e.lastArgs = name, args
	e.mu.Unlock()
	return e.result
}

type captureAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *captureAuditor) Log(event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

type engineFixture struct {
	engine   *Engine
	store    *MemoryStore
	chat     *fakeChat
	executor *fakeExecutor
	auditor  *captureAuditor
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:    NewMemoryStore(30 * time.Minute),
		chat:     &fakeChat{},
		executor: &fakeExecutor{result: tools.Result{Success: true, Message: "done"}},
		auditor:  &captureAuditor{},
	}
	f.engine = NewEngine(
		f.store, f.chat, fakeDir{}, staticAuth{"UAPPROVER": true},
		f.executor, f.auditor, NewMetrics(nil),
		30*time.Minute, "S1234", zap.NewNop(),
	)
	return f
}

func deleteArgs() map[string]any {
	return map[string]any{"objectName": "Contact", "recordId": "003x"}
}

func testScope() RequestScope {
	return RequestScope{Channel: "C1", ThreadTS: "111.222", RequesterID: "UREQ"}
}

// ─── Request ───

func TestRequestStoresAndPrompts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	res := f.engine.Request(ctx, ToolDeleteRecord, deleteArgs(), testScope())

	assert.True(t, res.Success)
	assert.True(t, res.PendingApproval)
	assert.Equal(t, "Your request to delete Contact record `003x` has been submitted for approval.", res.Message)

	require.Len(t, f.chat.posts, 1)
	prompt := f.chat.posts[0]
	assert.Equal(t, "C1", prompt.channel)
	assert.Equal(t, "111.222", prompt.threadTS)
	assert.Contains(t, prompt.text, "<!subteam^S1234>")
	assert.Contains(t, prompt.text, "Name of UREQ")
	assert.Contains(t, prompt.text, "Delete Contact record `003x`")
	assert.Contains(t, prompt.text, "expire in 30 minutes")

	require.Len(t, prompt.buttons, 2)
	assert.Equal(t, domain.ActionApprove, prompt.buttons[0].ActionID)
	assert.Equal(t, domain.ActionDeny, prompt.buttons[1].ActionID)
	assert.NotEmpty(t, prompt.buttons[0].Value)
	assert.Equal(t, prompt.buttons[0].Value, prompt.buttons[1].Value)

	// Запись в store и с привязанным промптом
	app, err := f.store.Get(ctx, prompt.buttons[0].Value)
	require.NoError(t, err)
	assert.Equal(t, ToolDeleteRecord, app.ToolName)
	assert.Equal(t, "UREQ", app.RequesterID)
	assert.NotEmpty(t, app.PromptTS)

	// Исполнение не началось
	assert.Zero(t, atomic.LoadInt64(&f.executor.calls))
}

func TestRequestStoreUnavailable(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.store = NewRedisStore(nil, time.Minute, zap.NewNop())

	res := f.engine.Request(context.Background(), ToolDeleteRecord, deleteArgs(), testScope())

	assert.False(t, res.Success)
	assert.False(t, res.PendingApproval)
	assert.Contains(t, res.Error, "Approvals are unavailable")
	assert.Empty(t, f.chat.posts, "no prompt without a stored record")
}

func TestRequestPromptPostFailureKeepsRecord(t *testing.T) {
	f := newEngineFixture(t)
	f.chat.postErr = fmt.Errorf("slack is down")

	res := f.engine.Request(context.Background(), ToolCreateRecord,
		map[string]any{"objectName": "Lead"}, testScope())

	// Результат для агента все равно pending: запись лежит в store до TTL
	assert.True(t, res.Success)
	assert.True(t, res.PendingApproval)

	var count int
	require.NoError(t, f.store.ScanAll(context.Background(), func(*domain.PendingApproval) bool {
		count++
		return true
	}))
	assert.Equal(t, 1, count)
}

// ─── Resolve ───

func (f *engineFixture) request(t *testing.T) string {
	t.Helper()
	f.engine.Request(context.Background(), ToolDeleteRecord, deleteArgs(), testScope())
	require.NotEmpty(t, f.chat.posts)
	return f.chat.posts[len(f.chat.posts)-1].buttons[0].Value
}

func approveClick(id string) domain.Interaction {
	return domain.Interaction{
		ActionID:    domain.ActionApprove,
		ActionValue: id,
		ClickerID:   "UAPPROVER",
		Channel:     "C1",
		MessageTS:   "100.001",
		MessageText: "Approval needed",
	}
}

func TestResolveApproveExecutesOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.request(t)

	require.NoError(t, f.engine.Resolve(ctx, approveClick(id)))

	assert.EqualValues(t, 1, atomic.LoadInt64(&f.executor.calls))
	assert.Equal(t, ToolDeleteRecord, f.executor.lastName)
	assert.Equal(t, "003x", f.executor.lastArgs["recordId"])

	// Запись изъята
	_, err := f.store.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Промпт обновлен, в тред ушел результат
	require.NotEmpty(t, f.chat.updates)
	assert.Contains(t, f.chat.updates[0].text, "Approved by <@UAPPROVER>")
	last := f.chat.posts[len(f.chat.posts)-1]
	assert.Contains(t, last.text, "completed")
	assert.Equal(t, "111.222", last.threadTS)

	// Аудит
	require.Len(t, f.auditor.events, 1)
	event := f.auditor.events[0]
	assert.Equal(t, "approved", event.Decision)
	assert.Equal(t, "SUCCESS", event.Status)
	assert.Equal(t, "UAPPROVER", event.ActorID)
	assert.Equal(t, "UREQ", event.RequesterID)
	assert.Equal(t, ToolDeleteRecord, event.ToolName)
}

func TestResolveApproveExecutionFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.executor.result = tools.Result{Success: false, Error: "FIELD_INTEGRITY_EXCEPTION"}
	id := f.request(t)

	require.NoError(t, f.engine.Resolve(context.Background(), approveClick(id)))

	last := f.chat.posts[len(f.chat.posts)-1]
	assert.Contains(t, last.text, "but the operation failed")
	assert.Contains(t, last.text, "FIELD_INTEGRITY_EXCEPTION")

	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, "approved", f.auditor.events[0].Decision)
	assert.Equal(t, "FAILED", f.auditor.events[0].Status)
}

func TestResolveDeny(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.request(t)

	click := approveClick(id)
	click.ActionID = domain.ActionDeny
	require.NoError(t, f.engine.Resolve(ctx, click))

	assert.Zero(t, atomic.LoadInt64(&f.executor.calls), "denied operation must not execute")

	_, err := f.store.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NotEmpty(t, f.chat.updates)
	assert.Contains(t, f.chat.updates[0].text, "Denied by <@UAPPROVER>")
	assert.Contains(t, f.chat.updates[0].text, "~Delete Contact record `003x`~")

	last := f.chat.posts[len(f.chat.posts)-1]
	assert.Equal(t, "Your request to delete Contact record `003x` was denied by <@UAPPROVER>.", last.text)

	require.Len(t, f.auditor.events, 1)
	assert.Equal(t, "denied", f.auditor.events[0].Decision)
}

func TestResolveUnauthorizedClickerLeavesRecord(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.request(t)

	click := approveClick(id)
	click.ClickerID = "UINTRUDER"
	require.NoError(t, f.engine.Resolve(ctx, click))

	assert.Zero(t, atomic.LoadInt64(&f.executor.calls))
	require.Len(t, f.chat.ephemerals, 1)
	assert.Contains(t, f.chat.ephemerals[0], "UINTRUDER: You are not authorized")

	// Заявка жива: ее может решить кто-то авторизованный
	_, err := f.store.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.engine.Resolve(ctx, approveClick(id)))
	assert.EqualValues(t, 1, atomic.LoadInt64(&f.executor.calls))
}

func TestResolveStaleClick(t *testing.T) {
	f := newEngineFixture(t)

	click := approveClick("nonexistent-id")
	require.NoError(t, f.engine.Resolve(context.Background(), click))

	assert.Zero(t, atomic.LoadInt64(&f.executor.calls))
	require.Len(t, f.chat.updates, 1)
	assert.Equal(t, "_This approval request has expired or was already handled._", f.chat.updates[0].text)
}

func TestResolveSecondClickSeesExpired(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.request(t)

	require.NoError(t, f.engine.Resolve(ctx, approveClick(id)))
	require.NoError(t, f.engine.Resolve(ctx, approveClick(id)))

	assert.EqualValues(t, 1, atomic.LoadInt64(&f.executor.calls))

	var sawExpired bool
	for _, u := range f.chat.updates {
		if strings.Contains(u.text, "expired or was already handled") {
			sawExpired = true
		}
	}
	assert.True(t, sawExpired)
}

func TestResolveConcurrentClicksExecuteOnce(t *testing.T) {
	f := newEngineFixture(t)
	id := f.request(t)

	const racers = 8
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.engine.Resolve(context.Background(), approveClick(id))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&f.executor.calls))
}

func TestResolveLegacyDescriptionMatch(t *testing.T) {
	f := newEngineFixture(t)
	_ = f.request(t)

	// Кнопка без value (старый промпт): сопоставление по тексту сообщения
	click := domain.Interaction{
		ActionID:    domain.ActionApprove,
		ClickerID:   "UAPPROVER",
		Channel:     "C1",
		MessageTS:   "100.001",
		MessageText: "<!subteam^S1234> Approval needed from *Name of UREQ*:\n\n*Delete Contact record `003x`*",
	}
	require.NoError(t, f.engine.Resolve(context.Background(), click))

	assert.EqualValues(t, 1, atomic.LoadInt64(&f.executor.calls))
}

func TestResolveLegacyMatchPicksCorrectRecord(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.Request(ctx, ToolDeleteRecord,
		map[string]any{"objectName": "Contact", "recordId": "003x"}, testScope())
	f.engine.Request(ctx, ToolDeleteRecord,
		map[string]any{"objectName": "Account", "recordId": "001a"}, testScope())

	click := domain.Interaction{
		ActionID:    domain.ActionApprove,
		ClickerID:   "UAPPROVER",
		Channel:     "C1",
		MessageTS:   "100.002",
		MessageText: "Approval needed:\n\n*Delete Account record `001a`*",
	}
	require.NoError(t, f.engine.Resolve(ctx, click))

	assert.EqualValues(t, 1, atomic.LoadInt64(&f.executor.calls))
	assert.Equal(t, "001a", f.executor.lastArgs["recordId"], "scan must select the record whose description appears in the prompt")

	// Вторая заявка не тронута
	remaining := 0
	require.NoError(t, f.store.ScanAll(ctx, func(app *domain.PendingApproval) bool {
		remaining++
		assert.Equal(t, "Delete Contact record `003x`", app.Description)
		return true
	}))
	assert.Equal(t, 1, remaining)
}

func TestResolveIgnoresForeignActions(t *testing.T) {
	f := newEngineFixture(t)
	id := f.request(t)

	click := approveClick(id)
	click.ActionID = "open_settings"
	require.NoError(t, f.engine.Resolve(context.Background(), click))

	assert.Zero(t, atomic.LoadInt64(&f.executor.calls))
	assert.Empty(t, f.chat.updates)

	_, err := f.store.Get(context.Background(), id)
	assert.NoError(t, err)
}
