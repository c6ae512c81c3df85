package wire

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAddHost(host uint32, count byte) []byte {
	b := make([]byte, 5)
	binary.LittleEndian.PutUint32(b[:4], host)
	b[4] = count
	return b
}

// TestDecodeAddBlockCountZero matches the spec §8 scenario: a count==0
// add entry yields a single {host, prefix:""} with no trailing bytes.
func TestDecodeAddBlockCountZero(t *testing.T) {
	body := encodeAddHost(1, 0)
	header := "a:5:4:" + strconv.Itoa(len(body)) + "\n"

	blocks, err := DecodeBlocks(strings.NewReader(header + string(body)))
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, KindAdd, b.Kind)
	assert.EqualValues(t, 5, b.ChunkNum)
	require.Len(t, b.Adds, 1)
	assert.EqualValues(t, 1, b.Adds[0].Host)
	assert.Nil(t, b.Adds[0].Prefix)
}

func TestDecodeAddBlockWithPrefixes(t *testing.T) {
	var body []byte
	body = append(body, encodeAddHost(42, 2)...)
	body = append(body, []byte{0xde, 0xad, 0xbe, 0xef}...)
	body = append(body, []byte{0x01, 0x02, 0x03, 0x04}...)
	header := "a:9:4:" + strconv.Itoa(len(body)) + "\n"

	blocks, err := DecodeBlocks(strings.NewReader(header + string(body)))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Adds, 2)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, blocks[0].Adds[0].Prefix)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, blocks[0].Adds[1].Prefix)
}

// TestDecodeSubBlockCountZero matches the spec §8 scenario exactly:
// host(4 LE)=1, count=0, add_chunknum(4 BE)=5 -> one entry.
func TestDecodeSubBlockCountZero(t *testing.T) {
	body := encodeAddHost(1, 0)
	body = append(body, []byte{0x00, 0x00, 0x00, 0x05}...)
	header := "s:7:4:" + strconv.Itoa(len(body)) + "\n"

	blocks, err := DecodeBlocks(strings.NewReader(header + string(body)))
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, KindSub, b.Kind)
	require.Len(t, b.Subs, 1)
	assert.EqualValues(t, 1, b.Subs[0].Host)
	assert.EqualValues(t, 5, b.Subs[0].AddChunkNum)
	assert.Nil(t, b.Subs[0].Prefix)
}

func TestDecodeEmptyBlockBodySynthesizesEntry(t *testing.T) {
	blocks, err := DecodeBlocks(strings.NewReader("a:1:4:0\n"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Adds, 1)
	assert.EqualValues(t, 0, blocks[0].Adds[0].Host)

	blocks, err = DecodeBlocks(strings.NewReader("s:1:4:0\n"))
	require.NoError(t, err)
	require.Len(t, blocks[0].Subs, 1)
	assert.EqualValues(t, 0, blocks[0].Subs[0].AddChunkNum)
}

func TestDecodeConcatenatedBlocks(t *testing.T) {
	addBody := encodeAddHost(1, 0)
	subBody := encodeAddHost(2, 0)
	subBody = append(subBody, []byte{0, 0, 0, 9}...)

	var buf bytes.Buffer
	buf.WriteString("a:1:4:" + strconv.Itoa(len(addBody)) + "\n")
	buf.Write(addBody)
	buf.WriteString("s:2:4:" + strconv.Itoa(len(subBody)) + "\n")
	buf.Write(subBody)

	blocks, err := DecodeBlocks(&buf)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, KindAdd, blocks[0].Kind)
	assert.Equal(t, KindSub, blocks[1].Kind)
}

func TestDecodeMalformedHeaderFailsClosed(t *testing.T) {
	_, err := DecodeBlocks(strings.NewReader("a:garbage\n"))
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestDecodeTruncatedBodyFailsClosed(t *testing.T) {
	_, err := DecodeBlocks(strings.NewReader("a:1:4:20\nshort"))
	assert.Error(t, err)
}

