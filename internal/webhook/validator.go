// Package webhook implements the Webhook Ingest surface: HMAC signature
// verification with replay protection, Redis-backed dedup, and the
// persist-then-enqueue handoff into the task queue.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Validator verifies a webhook request's authenticity and freshness,
// grounded on the teacher's HMAC-SHA256 + hmac.Equal pattern.
type Validator struct {
	secret       string
	replayWindow time.Duration
}

// NewValidator creates a Validator. replayWindow is the maximum allowed age
// of a message's timestamp (WEBHOOK_TIMEOUT, default 300s).
func NewValidator(secret string, replayWindow time.Duration) *Validator {
	if replayWindow <= 0 {
		replayWindow = 300 * time.Second
	}
	return &Validator{secret: secret, replayWindow: replayWindow}
}

// VerifySignature computes the HMAC-SHA256 of body with the configured
// secret and constant-time compares it against the "sha256=<hex>" header
// value. A missing or empty secret fails closed, refusing every request.
func (v *Validator) VerifySignature(body []byte, signatureHeader string) error {
	if v.secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}
	if signatureHeader == "" {
		return fmt.Errorf("missing signature header")
	}

	signature := strings.TrimPrefix(signatureHeader, "sha256=")

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// CheckReplayWindow rejects a message whose timestamp is further than the
// configured replay window from now, in either direction.
func (v *Validator) CheckReplayWindow(ts time.Time) error {
	age := time.Since(ts)
	if age < 0 {
		age = -age
	}
	if age > v.replayWindow {
		return fmt.Errorf("message timestamp outside replay window: age %s exceeds %s", age, v.replayWindow)
	}
	return nil
}
