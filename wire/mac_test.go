package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeAndVerifyMAC(t *testing.T) {
	key := []byte("client-key-bytes")
	payload := []byte("i:L\nn:60\n")

	digest := ComputeMAC(key, payload)
	assert.True(t, VerifyMAC(key, payload, digest))
	assert.False(t, VerifyMAC(key, payload, digest+"x"))
	assert.False(t, VerifyMAC([]byte("other-key"), payload, digest))
}
