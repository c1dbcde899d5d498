package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlainKey = "4c0883a69102937d6231471b5dbb6204fe512961708279feb1be6ae5538da033"

func TestEncryptDecryptKey_RoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testPlainKey, "correct horse")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, testPlainKey, got, "round trip should preserve the key without 0x prefix")
}

func TestDecryptKey_WrongPassword(t *testing.T) {
	blob, err := EncryptKey(testPlainKey, "right")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err, "GCM authentication must fail under the wrong password")
}

func TestEncryptKey_RejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testPlainKey, "")
	assert.Error(t, err, "empty password")

	_, err = EncryptKey("not-hex", "pw")
	assert.Error(t, err, "non-hex key")

	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err, "key shorter than 32 bytes")
}

func TestLoadKey_RawTakesPrecedence(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testPlainKey, KeyfilePath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, testPlainKey, got)
}

func TestLoadKey_Keyfile(t *testing.T) {
	blob, err := EncryptKey(testPlainKey, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{KeyfilePath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testPlainKey, got)
}

func TestLoadKey_NoSource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestLoadKey_RejectsInvalidRawHex(t *testing.T) {
	_, err := LoadKey(KeyConfig{RawPrivateKey: strings.Repeat("g", 64)})
	assert.Error(t, err)
}
