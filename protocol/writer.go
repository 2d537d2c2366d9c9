package protocol

import (
	"encoding/binary"
	"io"
)

// WriteFrame writes the whole frame with a single Write so frames from
// concurrent writers never interleave inside one frame.
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	b, err := EncodeFrame(op, payload)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

// EncodeMessage returns a MESSAGE frame for text. The payload keeps the
// trailing NUL that C peers expect.
func EncodeMessage(text string) ([]byte, error) {
	payload := make([]byte, 0, len(text)+1)
	payload = append(payload, text...)
	payload = append(payload, 0)

	return EncodeFrame(OpMessage, payload)
}

func WriteMessage(w io.Writer, text string) error {
	b, err := EncodeMessage(text)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

// WriteHandshake writes a single handshake value.
func WriteHandshake(w io.Writer, value int32) error {
	var buf [LengthSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(value))

	_, err := w.Write(buf[:])
	return err
}
