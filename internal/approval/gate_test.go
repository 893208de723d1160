package approval

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/tools"
)

func testLimits() Limits { return Limits{Authorized: 1500, Unauthorized: 500} }

// countingTool регистрирует инструмент, считающий прямые исполнения.
func countingTool(name string, counter *int64) tools.Tool {
	return tools.Tool{
		Name: name,
		Execute: func(context.Context, map[string]any) tools.Result {
			atomic.AddInt64(counter, 1)
			return tools.Result{Success: true, Message: "executed"}
		},
	}
}

func recordsArg(n int) []any {
	records := make([]any, n)
	for i := range records {
		records[i] = map[string]any{"Id": fmt.Sprintf("003%04d", i)}
	}
	return records
}

func newGateFixture(t *testing.T) (*Gate, *engineFixture) {
	t.Helper()
	f := newEngineFixture(t)
	return NewGate(f.engine, testLimits(), zap.NewNop()), f
}

func TestGateUngatedPassThrough(t *testing.T) {
	gate, _ := newGateFixture(t)

	var calls int64
	base := tools.NewRegistry()
	base.Register(countingTool("querySalesforce", &calls))

	// Даже неавторизованный пользователь зовет read-инструменты напрямую
	registry := gate.ForRequest(base, testScope(), false)
	res := registry.Execute(context.Background(), "querySalesforce", nil)

	assert.True(t, res.Success)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestGateAuthorizedExecutesDirectly(t *testing.T) {
	gate, f := newGateFixture(t)

	var calls int64
	base := tools.NewRegistry()
	base.Register(countingTool(ToolDeleteRecord, &calls))

	registry := gate.ForRequest(base, testScope(), true)
	res := registry.Execute(context.Background(), ToolDeleteRecord, deleteArgs())

	assert.True(t, res.Success)
	assert.False(t, res.PendingApproval)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
	assert.Empty(t, f.chat.posts, "no approval prompt for authorized user")
}

func TestGateAuthorizedBulkLimit(t *testing.T) {
	gate, _ := newGateFixture(t)

	var calls int64
	base := tools.NewRegistry()
	base.Register(countingTool(ToolBulkUpdate, &calls))
	registry := gate.ForRequest(base, testScope(), true)

	// На границе — исполняется
	res := registry.Execute(context.Background(), ToolBulkUpdate,
		map[string]any{"objectName": "Contact", "records": recordsArg(1500)})
	assert.True(t, res.Success)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))

	// Сверх лимита — отказ без исполнения
	res = registry.Execute(context.Background(), ToolBulkUpdate,
		map[string]any{"objectName": "Contact", "records": recordsArg(1501)})
	assert.False(t, res.Success)
	assert.Equal(t, "Bulk operations are limited to 1500 records. You submitted 1501.", res.Error)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestGateUnauthorizedBulkLimit(t *testing.T) {
	gate, f := newGateFixture(t)

	var calls int64
	base := tools.NewRegistry()
	base.Register(countingTool(ToolAddToCampaign, &calls))
	registry := gate.ForRequest(base, testScope(), false)

	ids := make([]any, 501)
	for i := range ids {
		ids[i] = fmt.Sprintf("003%04d", i)
	}
	res := registry.Execute(context.Background(), ToolAddToCampaign,
		map[string]any{"campaignId": "701x", "contactIds": ids})

	assert.False(t, res.Success)
	assert.Equal(t, "Bulk operations are limited to 500 records for non-authorized users. You submitted 501.", res.Error)
	assert.Zero(t, atomic.LoadInt64(&calls))
	assert.Empty(t, f.chat.posts, "over-limit request never reaches the approval workflow")
}

func TestGateUnauthorizedRoutesToApproval(t *testing.T) {
	gate, f := newGateFixture(t)
	ctx := context.Background()

	var calls int64
	base := tools.NewRegistry()
	base.Register(countingTool(ToolDeleteRecord, &calls))

	registry := gate.ForRequest(base, testScope(), false)
	res := registry.Execute(ctx, ToolDeleteRecord, deleteArgs())

	assert.True(t, res.Success)
	assert.True(t, res.PendingApproval)
	assert.Zero(t, atomic.LoadInt64(&calls), "gated call must not execute before approval")
	require.Len(t, f.chat.posts, 1)

	// Одобрение исполняет через executor движка, не через обертку
	id := f.chat.posts[0].buttons[0].Value
	require.NoError(t, f.engine.Resolve(ctx, approveClick(id)))
	assert.EqualValues(t, 1, atomic.LoadInt64(&f.executor.calls))
}

func TestGateBaseRegistryUntouched(t *testing.T) {
	gate, _ := newGateFixture(t)

	var calls int64
	base := tools.NewRegistry()
	base.Register(countingTool(ToolDeleteRecord, &calls))

	_ = gate.ForRequest(base, testScope(), false)

	// Базовый реестр по-прежнему исполняет напрямую
	res := base.Execute(context.Background(), ToolDeleteRecord, deleteArgs())
	assert.True(t, res.Success)
	assert.False(t, res.PendingApproval)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestGateUnauthorizedStoreDownMessage(t *testing.T) {
	gate, f := newGateFixture(t)
	f.engine.store = NewRedisStore(nil, 0, zap.NewNop())

	base := tools.NewRegistry()
	var calls int64
	base.Register(countingTool(ToolCreateRecord, &calls))

	registry := gate.ForRequest(base, testScope(), false)
	res := registry.Execute(context.Background(), ToolCreateRecord, map[string]any{"objectName": "Lead"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "the approval workflow requires Redis")
	assert.Zero(t, atomic.LoadInt64(&calls))
}
