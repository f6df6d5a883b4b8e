package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// frameHeaderBytes is the size of the length prefix of a frame
const frameHeaderBytes = 4

// ErrFrameTooLarge is returned when a frame exceeds the configured maximum payload size.
// On the read side the payload is never allocated.
var ErrFrameTooLarge = errors.New("frame too large")

// writeFrame writes a frame to w with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
//
// Header and payload are written with a single vectored write.
func writeFrame(w io.Writer, data []byte, maxBytes int) error {
	if len(data) > maxBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit of %d bytes", ErrFrameTooLarge, len(data), maxBytes)
	}

	header := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(w)
	return err
}

// readFrame reads a single frame from r and returns its payload.
//
// A stream that ends before the first header byte returns io.EOF, a stream that ends
// inside the header or the payload returns io.ErrUnexpectedEOF.
func readFrame(r io.Reader, maxBytes int) ([]byte, error) {
	var header [frameHeaderBytes]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:])
	if uint64(contentLength) > uint64(maxBytes) {
		return nil, fmt.Errorf("%w: announced payload of %d bytes exceeds limit of %d bytes", ErrFrameTooLarge, contentLength, maxBytes)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return []byte{}, nil
	}

	data := make([]byte, contentLength)
	if _, err := io.ReadFull(r, data); err != nil {
		// the header was complete, so any end of stream is unexpected
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}
