// Package protocol implements the binary frame protocol for mux-rpc.
//
// Every message on the wire is a fixed 16-byte header followed by exactly
// Length payload bytes. The receiver reads the header first to learn the
// payload length, then reads exactly that many bytes, which is what keeps
// frame boundaries intact on a TCP byte stream.
//
// Frame format (both header fields little-endian):
//
//	0               8               16
//	┌───────────────┬───────────────┬──────────────────┐
//	│    length     │      id       │   payload ...    │
//	│    uint64     │    uint64     │  length bytes    │
//	└───────────────┴───────────────┴──────────────────┘
//
// There is no magic number, version byte or checksum. A length of zero is
// valid and denotes an empty payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

// HeaderSize is the size of every frame header in bytes.
const HeaderSize = 16

// readChunk bounds how far ReadExact grows its buffer ahead of the data.
const readChunk = 1 << 20

var (
	// ErrMalformedHeader is returned when a header is not exactly HeaderSize bytes,
	// or when more bytes arrive for a frame than its header announced.
	ErrMalformedHeader = errors.New("protocol: malformed frame header")
	// ErrFrameTooLarge is returned when a header announces a payload above the
	// configured limit.
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")
)

// Header is the decoded form of the 16-byte frame header.
type Header struct {
	Length uint64 // Payload length in bytes
	ID     uint64 // Correlation id, echoed by the server on the response
}

// EncodeHeader writes h into the first HeaderSize bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint64(buf[0:8], h.Length)
	binary.LittleEndian.PutUint64(buf[8:16], h.ID)
}

// DecodeHeader parses a header. b must be exactly HeaderSize bytes long.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrMalformedHeader, len(b))
	}
	return Header{
		Length: binary.LittleEndian.Uint64(b[0:8]),
		ID:     binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

// Encode returns header(len(payload), id) followed by payload as one buffer,
// so it can be handed to a single write call.
func Encode(payload []byte, id uint64) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	EncodeHeader(buf, Header{Length: uint64(len(payload)), ID: id})
	copy(buf[HeaderSize:], payload)
	return buf
}

// ReadExact reads exactly n bytes from r.
//
// It returns io.EOF as soon as the underlying reader reports end of stream,
// even if part of the n bytes already arrived: the peer closed the connection
// in an orderly way and the partial data is useless. It never returns fewer
// than n bytes together with a nil error.
//
// n usually comes from the peer, so the buffer grows with the bytes that
// actually arrive rather than being sized from n up front.
func ReadExact(r io.Reader, n uint64) ([]byte, error) {
	buf := make([]byte, 0, min(n, readChunk))
	for uint64(len(buf)) < n {
		if len(buf) == cap(buf) {
			buf = slices.Grow(buf, int(min(n-uint64(len(buf)), readChunk)))
		}
		end := min(uint64(cap(buf)), n)
		k, err := r.Read(buf[len(buf):end])
		buf = buf[:len(buf)+k]
		if err == io.EOF {
			if uint64(len(buf)) == n {
				break
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ReadHeader reads and decodes one frame header from r.
func ReadHeader(r io.Reader) (Header, error) {
	raw, err := ReadExact(r, HeaderSize)
	if err != nil {
		return Header{}, err
	}
	return DecodeHeader(raw)
}

// ReadFrame reads one complete frame from r. A maxPayload of zero disables
// the size check.
func ReadFrame(r io.Reader, maxPayload uint64) (Header, []byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	if maxPayload > 0 && h.Length > maxPayload {
		return h, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, h.Length, maxPayload)
	}
	body, err := ReadExact(r, h.Length)
	if err != nil {
		return h, nil, err
	}
	return h, body, nil
}

// WriteFrame encodes payload under id and writes the whole frame to w.
// The caller must hold a write lock if several goroutines share w, otherwise
// frames from different requests interleave and corrupt the stream.
func WriteFrame(w io.Writer, id uint64, payload []byte) error {
	return WriteAll(w, Encode(payload, id))
}

// WriteAll writes buf to w, retrying short writes until every byte is out.
func WriteAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
