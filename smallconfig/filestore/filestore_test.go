package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usher2/sb2/smallconfig"
)

func TestOpenCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.FileExists(t, path)
}

func TestOpenRecreatesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)

	st, err := smallconfig.GetUpdateState(context.Background(), s, "goog-malware-shavar")
	require.NoError(t, err)
	assert.Zero(t, st)
}

func TestSetUpdateStateRoundTripsAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	want := smallconfig.UpdateState{Time: time.Unix(1700000000, 0).UTC(), Wait: 1800, Errors: 0}
	require.NoError(t, smallconfig.SetUpdateState(ctx, s, "goog-malware-shavar", want))

	got, err := smallconfig.GetUpdateState(ctx, s, "goog-malware-shavar")
	require.NoError(t, err)
	assert.True(t, want.Time.Equal(got.Time))
	assert.Equal(t, want.Wait, got.Wait)
	assert.Equal(t, want.Errors, got.Errors)

	reopened, err := Open(path)
	require.NoError(t, err)
	got2, err := smallconfig.GetUpdateState(ctx, reopened, "goog-malware-shavar")
	require.NoError(t, err)
	assert.True(t, want.Time.Equal(got2.Time))
	assert.Equal(t, want.Wait, got2.Wait)
}

func TestMACKeysSetDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, smallconfig.SetMACKeys(ctx, s, smallconfig.MACKeys{
		ClientKey:  []byte("clientsecret"),
		WrappedKey: "d2VlZG9nZQ==",
	}))

	got, err := smallconfig.GetMACKeys(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []byte("clientsecret"), got.ClientKey)
	assert.Equal(t, "d2VlZG9nZQ==", got.WrappedKey)

	require.NoError(t, smallconfig.DeleteMACKeys(ctx, s))
	got, err = smallconfig.GetMACKeys(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, got.WrappedKey)
}

func TestFullHashErrorStateSetClearRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	hexPrefix := "deadbeef"
	require.NoError(t, smallconfig.SetFullHashErrorState(ctx, s, hexPrefix, smallconfig.FullHashErrorState{
		Errors:    2,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}))

	got, err := smallconfig.GetFullHashErrorState(ctx, s, hexPrefix)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Errors)

	require.NoError(t, smallconfig.ClearFullHashErrorState(ctx, s, hexPrefix))
	got, err = smallconfig.GetFullHashErrorState(ctx, s, hexPrefix)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestUnknownPathRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.Get(ctx, "nonsense")
	assert.Error(t, err)
}
