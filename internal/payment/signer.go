// Package payment verifies payment-provider notifications and stores
// credit purchase transactions.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrReplayWindowExceeded is returned when timestamp is outside replay window.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrMissingSignature is returned when signature headers are absent.
	ErrMissingSignature = errors.New("missing signature headers")
)

// Notification headers.
const (
	SignatureHeader = "X-QuickGPT-Signature"
	TimestampHeader = "X-QuickGPT-Timestamp"
)

// DefaultReplayWindow is the default replay protection window.
const DefaultReplayWindow = 5 * time.Minute

// Sign creates the HMAC-SHA256 signature of a notification body.
// The canonical string format is: "{timestamp}.{body}"
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks notification signatures.
type Verifier struct {
	secret string
	window time.Duration
	now    func() time.Time
}

// NewVerifier creates a Verifier. A non-positive window uses DefaultReplayWindow.
func NewVerifier(secret string, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &Verifier{secret: secret, window: window, now: time.Now}
}

// Verify validates the raw header values against body.
func (v *Verifier) Verify(signature, timestamp string, body []byte) error {
	if signature == "" || timestamp == "" {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	if abs(v.now().Unix()-ts) > int64(v.window.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := Sign(v.secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
