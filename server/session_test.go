package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mux-rpc/protocol"
)

type delivered struct {
	id      uint64
	request []byte
}

func feedSession(maxPayload uint64) (*Session, *[]delivered) {
	var got []delivered
	s := newSession(-1, "test", maxPayload, func(id uint64, req []byte) {
		got = append(got, delivered{id, req})
	})
	return s, &got
}

func TestFeedWholeFrame(t *testing.T) {
	s, got := feedSession(0)
	frame := protocol.Encode([]byte("hello"), 7)

	assert.Equal(t, uint64(protocol.HeaderSize), s.MaxReadSize())
	require.NoError(t, s.Feed(frame[:protocol.HeaderSize]))
	assert.Equal(t, uint64(5), s.MaxReadSize())
	require.NoError(t, s.Feed(frame[protocol.HeaderSize:]))

	require.Len(t, *got, 1)
	assert.Equal(t, uint64(7), (*got)[0].id)
	assert.Equal(t, "hello", string((*got)[0].request))
	assert.Equal(t, uint64(protocol.HeaderSize), s.MaxReadSize())
}

func TestFeedSplitHeader(t *testing.T) {
	s, got := feedSession(0)
	frame := protocol.Encode([]byte("abc"), 1)

	// one byte at a time, always within MaxReadSize
	for i := 0; i < len(frame); i++ {
		require.Equal(t, i < protocol.HeaderSize, s.awaitingHeader)
		require.NoError(t, s.Feed(frame[i:i+1]))
	}
	require.Len(t, *got, 1)
	assert.Equal(t, "abc", string((*got)[0].request))
}

func TestFeedEmptyPayload(t *testing.T) {
	s, got := feedSession(0)
	require.NoError(t, s.Feed(protocol.Encode(nil, 3)))

	require.Len(t, *got, 1)
	assert.Equal(t, uint64(3), (*got)[0].id)
	assert.NotNil(t, (*got)[0].request)
	assert.Empty(t, (*got)[0].request)
	assert.True(t, s.awaitingHeader)
}

func TestFeedBackToBack(t *testing.T) {
	s, got := feedSession(0)
	for id, body := range []string{"one", "", "three"} {
		frame := protocol.Encode([]byte(body), uint64(id))
		require.NoError(t, s.Feed(frame[:protocol.HeaderSize]))
		if body != "" {
			require.NoError(t, s.Feed(frame[protocol.HeaderSize:]))
		}
	}
	require.Len(t, *got, 3)
	assert.Equal(t, "three", string((*got)[2].request))
	assert.Equal(t, uint64(2), (*got)[2].id)
}

func TestFeedOverlongHeaderFragment(t *testing.T) {
	s, _ := feedSession(0)
	require.NoError(t, s.Feed(make([]byte, 10)))
	assert.ErrorIs(t, s.Feed(make([]byte, 7)), protocol.ErrMalformedHeader)
}

func TestFeedOverlongBodyFragment(t *testing.T) {
	s, _ := feedSession(0)
	frame := protocol.Encode([]byte("abc"), 1)
	require.NoError(t, s.Feed(frame[:protocol.HeaderSize]))
	assert.ErrorIs(t, s.Feed([]byte("abcd")), protocol.ErrMalformedHeader)
}

func TestFeedFrameTooLarge(t *testing.T) {
	s, got := feedSession(8)
	frame := protocol.Encode(make([]byte, 9), 1)
	assert.ErrorIs(t, s.Feed(frame[:protocol.HeaderSize]), protocol.ErrFrameTooLarge)
	assert.Empty(t, *got)
}
