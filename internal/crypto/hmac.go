package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for HMAC-authenticated requests against
// the Meridian offer relay.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, base64-encoded
	Passphrase string // API passphrase
}

// Headers returns the HTTP headers for a relay request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
//
// Returned header keys:
//   - MERIDIAN_API_KEY
//   - MERIDIAN_TIMESTAMP
//   - MERIDIAN_PASSPHRASE
//   - MERIDIAN_SIGNATURE
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secretBytes, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// A misencoded secret still signs; the relay rejects it with a 401.
		secretBytes = []byte(h.Secret)
	}

	message := ts + method + path + body
	sig := hmacSHA256Base64(secretBytes, message)

	return map[string]string{
		"MERIDIAN_API_KEY":    h.Key,
		"MERIDIAN_TIMESTAMP":  ts,
		"MERIDIAN_PASSPHRASE": h.Passphrase,
		"MERIDIAN_SIGNATURE":  sig,
	}
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns
// the result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
