package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDirectory — словарь user id → email со счетчиком обращений.
type fakeDirectory struct {
	emails map[string]string
	calls  int
	err    error
}

func (d *fakeDirectory) UserEmail(_ context.Context, userID string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return d.emails[userID], nil
}

func TestIsAuthorizedStaticList(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{
		"U1": "lead@example.com",
		"U2": "intern@example.com",
	}}
	auth := NewAuthorizer([]string{"Lead@Example.com "}, dir, zap.NewNop())

	ok, err := auth.IsAuthorized(context.Background(), "U1")
	require.NoError(t, err)
	assert.True(t, ok, "email match is case-insensitive and trimmed")

	ok, err = auth.IsAuthorized(context.Background(), "U2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAuthorizedFailClosed(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"U1": "lead@example.com"}}
	auth := NewAuthorizer(nil, dir, zap.NewNop())

	ok, err := auth.IsAuthorized(context.Background(), "U1")
	require.NoError(t, err)
	assert.False(t, ok, "empty allow-list must deny everyone")
	assert.Zero(t, dir.calls, "no directory call when the list is empty")
}

func TestIsAuthorizedLookupError(t *testing.T) {
	dir := &fakeDirectory{err: fmt.Errorf("users.info: ratelimited")}
	auth := NewAuthorizer([]string{"lead@example.com"}, dir, zap.NewNop())

	ok, err := auth.IsAuthorized(context.Background(), "U1")
	assert.Error(t, err)
	assert.False(t, ok, "lookup failure must not grant access")
}

func TestIsAuthorizedMissingEmail(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{}}
	auth := NewAuthorizer([]string{"lead@example.com"}, dir, zap.NewNop())

	ok, err := auth.IsAuthorized(context.Background(), "UBOT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmailCache(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"U1": "lead@example.com"}}
	auth := NewAuthorizer([]string{"lead@example.com"}, dir, zap.NewNop())

	for i := 0; i < 5; i++ {
		ok, err := auth.IsAuthorized(context.Background(), "U1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, dir.calls, "email resolved once within cache TTL")
}

func TestRuntimeList(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"U1": "ops@example.com"}}
	auth := NewAuthorizer(nil, dir, zap.NewNop())

	// Пустой список — deny
	ok, _ := auth.IsAuthorized(context.Background(), "U1")
	assert.False(t, ok)

	auth.ReplaceRuntime([]string{"OPS@example.com"})
	ok, err := auth.IsAuthorized(context.Background(), "U1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Точечный сигнал off
	auth.SetRuntime("ops@example.com", false)
	ok, _ = auth.IsAuthorized(context.Background(), "U1")
	assert.False(t, ok)

	// И обратно on
	auth.SetRuntime("ops@example.com", true)
	ok, _ = auth.IsAuthorized(context.Background(), "U1")
	assert.True(t, ok)
}
