package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerify(t *testing.T) {
	v := NewVerifier("test_key_secret")

	sig := sign("test_key_secret", "order_1", "pay_1")
	assert.True(t, v.Verify("order_1", "pay_1", sig))
}

func TestVerifyMutatedSignature(t *testing.T) {
	v := NewVerifier("test_key_secret")

	sig := sign("test_key_secret", "order_1", "pay_1")

	for i := 0; i < len(sig); i++ {
		mutated := []byte(sig)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		assert.False(t, v.Verify("order_1", "pay_1", string(mutated)),
			"mutation at position %d must not verify", i)
	}
}

func TestVerifyWrongInputs(t *testing.T) {
	v := NewVerifier("test_key_secret")
	sig := sign("test_key_secret", "order_1", "pay_1")

	assert.False(t, v.Verify("order_2", "pay_1", sig))
	assert.False(t, v.Verify("order_1", "pay_2", sig))
	assert.False(t, v.Verify("order_1", "pay_1", ""))

	// signed with a different secret
	forged := sign("other_secret", "order_1", "pay_1")
	assert.False(t, v.Verify("order_1", "pay_1", forged))
}

func TestVerifyEmptySecretFailsClosed(t *testing.T) {
	v := NewVerifier("")

	// even a "correct" MAC for the empty key must not verify
	sig := sign("", "order_1", "pay_1")
	assert.False(t, v.Verify("order_1", "pay_1", sig))
}
