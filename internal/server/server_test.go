package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/approval"
	slackconn "github.com/joe-reitz/oss-moperator/internal/connectors/slack"
	"github.com/joe-reitz/oss-moperator/internal/domain"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

const testSigningSecret = "test-signing-secret"

func newTestServer(t *testing.T, store approval.Store) *Server {
	t.Helper()
	cfg := infra.Config{
		Slack: infra.SlackConfig{SigningSecret: testSigningSecret},
		Admin: infra.AdminConfig{Token: "admin-token"},
	}
	logger := zap.NewNop()
	return New(cfg, Deps{
		Slack: slackconn.NewClient(cfg.Slack, logger),
		Store: store,
	}, logger)
}

func signedRequest(t *testing.T, target, contentType string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)

	ts := fmt.Sprint(time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestURLVerification(t *testing.T) {
	srv := newTestServer(t, approval.NewMemoryStore(time.Minute))
	body := []byte(`{"type":"url_verification","challenge":"ch-42"}`)

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, signedRequest(t, "/api/slack/events", "application/json", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ch-42", res["challenge"])
}

func TestBadSignatureRejected(t *testing.T) {
	srv := newTestServer(t, approval.NewMemoryStore(time.Minute))

	req := httptest.NewRequest(http.MethodPost, "/api/slack/events",
		bytes.NewReader([]byte(`{"type":"url_verification"}`)))
	req.Header.Set("X-Slack-Request-Timestamp", fmt.Sprint(time.Now().Unix()))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTraceIDHeader(t *testing.T) {
	srv := newTestServer(t, approval.NewMemoryStore(time.Minute))

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestAdminApprovalsAuth(t *testing.T) {
	store := approval.NewMemoryStore(time.Minute)
	require.NoError(t, store.Put(context.Background(), &domain.PendingApproval{
		ID:          "id-1",
		ToolName:    approval.ToolDeleteRecord,
		Description: "Delete Contact record `003x`",
	}))
	srv := newTestServer(t, store)

	// Без токена — отказ
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/approvals", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// С токеном — список живых заявок
	req := httptest.NewRequest(http.MethodGet, "/api/v1/approvals", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Count     int                       `json:"count"`
		Approvals []*domain.PendingApproval `json:"approvals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Approvals, 1)
	assert.Equal(t, "id-1", res.Approvals[0].ID)
}
