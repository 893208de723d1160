package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "8f742231b10e8888abcd99yyyzzz85a5"
	body := []byte(`{"type":"event_callback"}`)
	ts := fmt.Sprint(time.Now().Unix())

	require.NoError(t, VerifySignature(secret, ts, sign(secret, ts, body), body))
}

func TestVerifySignatureMismatch(t *testing.T) {
	secret := "secret-a"
	body := []byte("payload")
	ts := fmt.Sprint(time.Now().Unix())

	err := VerifySignature(secret, ts, sign("secret-b", ts, body), body)
	assert.ErrorContains(t, err, "signature mismatch")

	// Подпись от другого тела
	err = VerifySignature(secret, ts, sign(secret, ts, []byte("other")), body)
	assert.ErrorContains(t, err, "signature mismatch")
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	secret := "secret"
	body := []byte("payload")

	old := fmt.Sprint(time.Now().Add(-6 * time.Minute).Unix())
	err := VerifySignature(secret, old, sign(secret, old, body), body)
	assert.ErrorContains(t, err, "out of window")

	future := fmt.Sprint(time.Now().Add(6 * time.Minute).Unix())
	err = VerifySignature(secret, future, sign(secret, future, body), body)
	assert.ErrorContains(t, err, "out of window")
}

func TestVerifySignatureBadInput(t *testing.T) {
	assert.Error(t, VerifySignature("", "123", "v0=abc", nil))
	assert.Error(t, VerifySignature("secret", "not-a-number", "v0=abc", nil))
}
