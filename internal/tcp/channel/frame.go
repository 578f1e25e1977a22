package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

var (
	ErrInvalidMagic  = errors.New("invalid magic number")
	ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")
)

// WriteFrame writes the header and payload of one message
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	if len(payload) > defs.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, defs.HeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], defs.MagicNumber)
	frame[2] = msgType
	frame[3] = 0 // Reserved
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[defs.HeaderSize:], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message frame: %w", err)
	}
	return nil
}

// ReadFrame reads one message
func ReadFrame(r io.Reader) (defs.Message, error) {
	header := make([]byte, defs.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return defs.Message{}, err
	}

	magic := binary.BigEndian.Uint16(header[0:2])
	if magic != defs.MagicNumber {
		return defs.Message{}, fmt.Errorf("%w: %x", ErrInvalidMagic, magic)
	}
	msgType := header[2]
	payloadLen := binary.BigEndian.Uint32(header[4:8])
	if payloadLen > defs.MaxPayloadSize {
		return defs.Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return defs.Message{}, fmt.Errorf("failed to read message payload: %w", err)
	}
	return defs.Message{Type: msgType, Payload: payload}, nil
}
