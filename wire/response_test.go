package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpdateResponseBasicFlow(t *testing.T) {
	body := []byte("i:goog-malware-shavar\nn:1800\nu:example.com/1,HMAC1\n")

	resp, err := ParseUpdateResponse(body)
	require.NoError(t, err)
	assert.Equal(t, 1800, resp.WaitSeconds)
	require.Len(t, resp.Events, 1)
	ev := resp.Events[0]
	assert.Equal(t, EventRedirect, ev.Kind)
	assert.Equal(t, "goog-malware-shavar", ev.List)
	assert.Equal(t, "example.com/1", ev.URL)
	assert.Equal(t, "HMAC1", ev.HMAC)
}

func TestParseUpdateResponseReset(t *testing.T) {
	resp, err := ParseUpdateResponse([]byte("i:L\nr:pleasereset\n"))
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventReset, resp.Events[0].Kind)
	assert.Equal(t, "L", resp.Events[0].List)
}

func TestParseUpdateResponseRekey(t *testing.T) {
	resp, err := ParseUpdateResponse([]byte("e:pleaserekey\n"))
	require.NoError(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventRekey, resp.Events[0].Kind)
}

func TestParseUpdateResponseDeletes(t *testing.T) {
	resp, err := ParseUpdateResponse([]byte("i:L\nad:1-3,5\nsd:7\n"))
	require.NoError(t, err)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, EventDeleteAdd, resp.Events[0].Kind)
	assert.Equal(t, "1-3,5", resp.Events[0].Range)
	assert.Equal(t, EventDeleteSub, resp.Events[1].Kind)
	assert.Equal(t, "7", resp.Events[1].Range)
}

func TestParseUpdateResponseMACLineStripped(t *testing.T) {
	body := []byte("i:L\nn:60\nm:abcd==\n")
	resp, err := ParseUpdateResponse(body)
	require.NoError(t, err)
	assert.True(t, resp.HasMAC)
	assert.Equal(t, "abcd==", resp.MACDigest)
	assert.NotContains(t, string(resp.UnMACedBody), "m:abcd")
}

func TestParseUpdateResponseEmptyBody(t *testing.T) {
	resp, err := ParseUpdateResponse([]byte(""))
	require.NoError(t, err)
	assert.False(t, resp.HasWait)
	assert.Empty(t, resp.Events)
}

func TestParseUpdateResponseContextSwitch(t *testing.T) {
	body := []byte("i:L1\nad:1\ni:L2\nad:2\n")
	resp, err := ParseUpdateResponse(body)
	require.NoError(t, err)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "L1", resp.Events[0].List)
	assert.Equal(t, "L2", resp.Events[1].List)
}
