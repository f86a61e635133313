package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"event": "star_added"}`)

	assert.True(t, VerifySignature(secret, body, sign(secret, body)))
	assert.True(t, VerifySignature(secret, body, "sha256="+sign(secret, body)))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"event": "star_added"}`)
	sig := sign(secret, body)

	assert.False(t, VerifySignature(secret, []byte(`{"event": "star_removed"}`), sig))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"event": "star_added"}`)
	sig := sign([]byte("other-secret"), body)

	assert.False(t, VerifySignature([]byte("webhook-secret"), body, sig))
}

func TestVerifySignatureRejectsGarbage(t *testing.T) {
	assert.False(t, VerifySignature([]byte("secret"), []byte("body"), ""))
	assert.False(t, VerifySignature([]byte("secret"), []byte("body"), "not-hex"))
}
