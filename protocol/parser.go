package protocol

import (
	"fmt"
	"io"
)

// ReadRequest reads one frame from r and decodes it.
//
// When the frame was read completely but its payload could not be decoded,
// ReadRequest returns the error and the stream is still positioned on the next
// frame boundary. Every other error leaves the stream unusable.
func ReadRequest(r io.Reader, limits Limits) (Request, error) {
	frame, err := ReadFrame(r, limits)
	if err != nil {
		return nil, err
	}

	return Decode(frame)
}

// Decode turns a frame into its Request variant.
func Decode(f Frame) (Request, error) {
	if f.Closed() {
		return &DisconnectRequest{}, nil
	}

	switch f.Opcode {
	case OpMessage:
		return &MessageRequest{Text: DecodeMessage(f.Payload)}, nil

	case OpPacket:
		fields, err := DecodePacket(f.Payload)
		if err != nil {
			return nil, err
		}

		return &PacketRequest{Fields: fields}, nil

	default:
		return &UnknownRequest{Op: f.Opcode, Payload: f.Payload}, nil
	}
}

// DecodePacket splits a PACKET payload back into its fields. The fields must
// cover the payload exactly.
func DecodePacket(payload []byte) ([][]byte, error) {
	fields := make([][]byte, 0)
	offset := 0

	for offset < len(payload) {
		value, next, err := DecodeField(payload, offset)
		if err != nil {
			return nil, fmt.Errorf("field %d at offset %d of %d: %w",
				len(fields), offset, len(payload), err)
		}

		fields = append(fields, value)
		offset = next
	}

	return fields, nil
}

// DecodeMessage returns the string carried by a MESSAGE payload.
func DecodeMessage(payload []byte) string {
	return string(RemoveTrailingNUL(payload))
}

func RemoveTrailingNUL(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == 0 {
		// Remove the C string terminator
		return data[:len(data)-1]
	}

	return data
}
