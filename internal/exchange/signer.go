package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Signer produces Extended Exchange request signatures
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns hex(HMAC-SHA256(secret, timestamp + METHOD + path + body))
func (s *Signer) Sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(timestamp + strings.ToUpper(method) + path + body))
	return hex.EncodeToString(h.Sum(nil))
}

// Headers returns the auth headers for a request made at t
func (s *Signer) Headers(t time.Time, method, path, body string) map[string]string {
	ts := strconv.FormatInt(t.UnixMilli(), 10)
	return map[string]string{
		"X-Timestamp": ts,
		"X-Signature": s.Sign(ts, method, path, body),
	}
}
