package protocol

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	frame := Encode([]byte("hello"), 0x0102030405060708)

	want := []byte{
		5, 0, 0, 0, 0, 0, 0, 0, // length, little-endian
		8, 7, 6, 5, 4, 3, 2, 1, // id, little-endian
		'h', 'e', 'l', 'l', 'o',
	}
	assert.Equal(t, want, frame)
}

func TestEncodeEmptyPayload(t *testing.T) {
	frame := Encode(nil, 7)
	require.Len(t, frame, HeaderSize)

	h, err := DecodeHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, Header{Length: 0, ID: 7}, h)
}

func TestDecodeHeaderRejectsWrongSize(t *testing.T) {
	for _, n := range []int{0, 1, 15, 17, 32} {
		_, err := DecodeHeader(make([]byte, n))
		assert.ErrorIs(t, err, ErrMalformedHeader, "size %d", n)
	}
}

func TestReadFrameRoundTrip(t *testing.T) {
	payload := make([]byte, 10000)
	rand.Read(payload)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, 42, payload))

	// one byte per Read forces ReadExact to loop
	h, body, err := ReadFrame(iotest.OneByteReader(&buf), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h.ID)
	assert.Equal(t, uint64(len(payload)), h.Length)
	assert.True(t, bytes.Equal(payload, body))
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, 1, make([]byte, 64)))

	_, _, err := ReadFrame(&buf, 32)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadExactEOF(t *testing.T) {
	_, err := ReadExact(bytes.NewReader(nil), HeaderSize)
	assert.Equal(t, io.EOF, err)

	// a partial frame followed by EOF is still an orderly close
	_, err = ReadExact(bytes.NewReader([]byte{1, 2, 3}), HeaderSize)
	assert.Equal(t, io.EOF, err)
}

func TestReadExactDataWithEOF(t *testing.T) {
	// readers may return the final bytes together with io.EOF
	r := iotest.DataErrReader(bytes.NewReader([]byte("abcd")))
	got, err := ReadExact(r, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), got)
}

func TestReadExactPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := ReadExact(iotest.ErrReader(boom), 4)
	assert.ErrorIs(t, err, boom)
}

func TestReadExactZero(t *testing.T) {
	got, err := ReadExact(bytes.NewReader(nil), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type shortWriter struct {
	bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > 3 {
		p = p[:3]
	}
	return w.Buffer.Write(p)
}

func TestWriteAllShortWrites(t *testing.T) {
	var w shortWriter
	require.NoError(t, WriteFrame(&w, 9, []byte("short writes")))

	h, body, err := ReadFrame(&w.Buffer, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), h.ID)
	assert.Equal(t, "short writes", string(body))
}

func TestReadFrameLyingLength(t *testing.T) {
	// a header announcing far more than the peer ever sends
	var buf bytes.Buffer
	hdr := make([]byte, HeaderSize)
	EncodeHeader(hdr, Header{Length: 1 << 62, ID: 3})
	buf.Write(hdr)
	buf.Write([]byte("short"))

	_, _, err := ReadFrame(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadExactAcrossChunks(t *testing.T) {
	payload := make([]byte, 3*readChunk+17)
	rand.Read(payload)

	got, err := ReadExact(bytes.NewReader(payload), uint64(len(payload)))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}
