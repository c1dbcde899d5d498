package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuth() *HMACAuth {
	return &HMACAuth{
		Key:        "test-key",
		Secret:     base64.StdEncoding.EncodeToString([]byte("super-secret")),
		Passphrase: "hunter2",
	}
}

func TestHeadersAt_Deterministic(t *testing.T) {
	auth := testAuth()

	h1 := auth.HeadersAt("POST", "/v1/offers", `{"kind":"create_pool"}`, 1700000000)
	h2 := auth.HeadersAt("POST", "/v1/offers", `{"kind":"create_pool"}`, 1700000000)

	require.Equal(t, h1, h2, "same inputs should sign identically")
	assert.Equal(t, "test-key", h1["MERIDIAN_API_KEY"])
	assert.Equal(t, "1700000000", h1["MERIDIAN_TIMESTAMP"])
	assert.Equal(t, "hunter2", h1["MERIDIAN_PASSPHRASE"])
	assert.NotEmpty(t, h1["MERIDIAN_SIGNATURE"])
}

func TestHeadersAt_SignatureCoversMessage(t *testing.T) {
	auth := testAuth()
	base := auth.HeadersAt("POST", "/v1/offers", "body-a", 1700000000)

	otherBody := auth.HeadersAt("POST", "/v1/offers", "body-b", 1700000000)
	assert.NotEqual(t, base["MERIDIAN_SIGNATURE"], otherBody["MERIDIAN_SIGNATURE"], "body is signed")

	otherPath := auth.HeadersAt("POST", "/v1/fills", "body-a", 1700000000)
	assert.NotEqual(t, base["MERIDIAN_SIGNATURE"], otherPath["MERIDIAN_SIGNATURE"], "path is signed")

	otherTS := auth.HeadersAt("POST", "/v1/offers", "body-a", 1700000001)
	assert.NotEqual(t, base["MERIDIAN_SIGNATURE"], otherTS["MERIDIAN_SIGNATURE"], "timestamp is signed")
}

func TestHMACAuth_StringRedacts(t *testing.T) {
	auth := testAuth()
	s := auth.String()
	assert.NotContains(t, s, auth.Secret, "secret must not appear in log output")
	assert.Contains(t, s, "****")
}
