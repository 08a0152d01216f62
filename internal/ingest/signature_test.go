package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSignature(t *testing.T) {
	payload := []byte(`{"event":"transaction.created","amount":-50.0}`)
	secret := "test-webhook-secret"
	sig := ComputeSignature(payload, secret)

	assert.True(t, ValidateSignature(payload, sig, secret))
}

func TestValidateSignatureBitFlips(t *testing.T) {
	payload := []byte(`{"event":"transaction.created","amount":-50.0}`)
	secret := "test-webhook-secret"
	sig := ComputeSignature(payload, secret)

	flipped := []byte(sig)
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}
	assert.False(t, ValidateSignature(payload, string(flipped), secret), "signature bit flip")

	tampered := append([]byte(nil), payload...)
	tampered[10] ^= 0x01
	assert.False(t, ValidateSignature(tampered, sig, secret), "payload bit flip")
}

func TestValidateSignatureFailsClosed(t *testing.T) {
	payload := []byte(`{}`)
	sig := ComputeSignature(payload, "secret")

	assert.False(t, ValidateSignature(payload, sig, ""), "missing secret")
	assert.False(t, ValidateSignature(payload, "", "secret"), "missing signature")
	assert.False(t, ValidateSignature(payload, "not-hex!", "secret"), "malformed hex")
	assert.False(t, ValidateSignature(payload, sig[:32], "secret"), "truncated signature")
	assert.False(t, ValidateSignature(payload, sig, "wrong-secret"))
}
