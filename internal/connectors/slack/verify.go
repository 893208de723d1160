package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const signatureVersion = "v0"

// Окно против replay-атак
const maxTimestampSkew = 5 * time.Minute

// VerifySignature проверяет подпись запроса Slack (схема v0):
// HMAC-SHA256 от "v0:{timestamp}:{body}" на signing secret.
func VerifySignature(signingSecret, timestamp, signature string, body []byte) error {
	if signingSecret == "" {
		return fmt.Errorf("slack: signing secret not configured")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("slack: bad request timestamp: %w", err)
	}
	if skew := time.Since(time.Unix(ts, 0)); skew > maxTimestampSkew || skew < -maxTimestampSkew {
		return fmt.Errorf("slack: request timestamp out of window")
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "%s:%s:", signatureVersion, timestamp)
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("slack: signature mismatch")
	}
	return nil
}
