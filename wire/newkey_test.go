package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNewKeyResponse(t *testing.T) {
	body := "clientkey:16:Y2xpZW50c2VjcmV0\nwrappedkey:8:d2VlZG9nZQ==\n"

	resp, err := ParseNewKeyResponse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []byte("clientsecret"), resp.ClientKey)
	assert.Equal(t, "d2VlZG9nZQ==", resp.WrappedKey)
}

func TestParseNewKeyResponseMissingField(t *testing.T) {
	_, err := ParseNewKeyResponse([]byte("clientkey:16:Y2xpZW50c2VjcmV0\n"))
	assert.Error(t, err)
}

func TestParseNewKeyResponseMalformedLine(t *testing.T) {
	_, err := ParseNewKeyResponse([]byte("garbage\n"))
	assert.Error(t, err)
}
