package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the opcode plus the payload length.
const HeaderSize = 2 * LengthSize

var (
	ErrTransport          = errors.New("Transport failure, could not connect, bind or accept")
	ErrConnectionLost     = errors.New("Connection lost, the peer closed it part way through a frame")
	ErrFrameTooLarge      = errors.New("Frame is too large, its payload length does not fit in an int32")
	ErrPayloadTooLarge    = errors.New("Frame payload is larger than the configured limit")
	ErrInvalidFrameLength = errors.New("Frame is malformed, it declares a negative payload length")
)

// Frame is one complete unit read off the wire.
type Frame struct {
	Opcode  Opcode
	Payload []byte

	closed bool
}

// Closed is true for the frame ReadFrame returns after the peer has closed the
// connection on a frame boundary. An opcode of -1 sent on the wire is not a
// close, it is an unknown opcode.
func (f Frame) Closed() bool {
	return f.closed
}

// Limits bounds the memory a single frame may claim while it is being read.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 16 * 1024 * 1024,
	}
}

// EncodeFrame returns the wire form of a frame.
func EncodeFrame(op Opcode, payload []byte) ([]byte, error) {
	length, err := wireLength(int64(len(payload)), ErrFrameTooLarge)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:8], length)

	return append(buf, payload...), nil
}

// wireLength converts n to a length prefix, tooLarge is returned when n does
// not fit in an int32.
func wireLength(n int64, tooLarge error) (uint32, error) {
	if n < 0 || n > math.MaxInt32 {
		return 0, tooLarge
	}

	return uint32(n), nil
}

// ReadOpcode blocks until 4 bytes of opcode have been read. If the peer closed
// the connection before sending anything it returns closed and no error, the
// opcode is then OpDisconnect. A -1 read off the wire is returned with closed
// false.
func ReadOpcode(r io.Reader) (op Opcode, closed bool, err error) {
	var buf [LengthSize]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			// io.ReadFull only returns io.EOF when no bytes were read
			return OpDisconnect, true, nil
		}

		return OpDisconnect, false, lost("opcode", err)
	}

	return Opcode(int32(binary.LittleEndian.Uint32(buf[:]))), false, nil
}

// ReadPayload reads a payload length and then exactly that many bytes.
func ReadPayload(r io.Reader, limits Limits) ([]byte, error) {
	var buf [LengthSize]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, lost("payload length", err)
	}

	length := int32(binary.LittleEndian.Uint32(buf[:]))
	if length < 0 {
		return nil, ErrInvalidFrameLength
	}

	if limits.MaxPayloadBytes > 0 && int(length) > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%d bytes: %w", length, ErrPayloadTooLarge)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, lost("payload", err)
	}

	return payload, nil
}

// ReadFrame reads one frame. The payload is consumed for every opcode, known or
// not, so the next read starts on a frame boundary.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	op, closed, err := ReadOpcode(r)
	if err != nil {
		return Frame{Opcode: OpDisconnect}, err
	}

	if closed {
		return Frame{Opcode: OpDisconnect, closed: true}, nil
	}

	payload, err := ReadPayload(r, limits)
	if err != nil {
		return Frame{Opcode: op}, err
	}

	return Frame{Opcode: op, Payload: payload}, nil
}

func lost(reading string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("reading %s: %w", reading, ErrConnectionLost)
	}

	return fmt.Errorf("reading %s: %w (%v)", reading, ErrConnectionLost, err)
}
