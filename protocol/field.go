package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LengthSize is the width of every length prefix and opcode on the wire.
const LengthSize = 4

var (
	ErrMalformedPacket = errors.New("Packet is malformed")
	ErrFieldTooLarge   = errors.New("Field is too large, its length does not fit in an int32")

	// Both of these are also ErrMalformedPacket
	ErrTruncatedField     = fmt.Errorf("%w, a field is longer than the bytes that remain", ErrMalformedPacket)
	ErrInvalidFieldLength = fmt.Errorf("%w, a field declares a negative length", ErrMalformedPacket)
)

// EncodeField returns value prefixed with its length.
func EncodeField(value []byte) ([]byte, error) {
	return AppendField(make([]byte, 0, LengthSize+len(value)), value)
}

// AppendField appends the encoding of value to dst and returns the extended
// slice.
func AppendField(dst, value []byte) ([]byte, error) {
	length, err := wireLength(int64(len(value)), ErrFieldTooLarge)
	if err != nil {
		return dst, err
	}

	var prefix [LengthSize]byte
	binary.LittleEndian.PutUint32(prefix[:], length)

	dst = append(dst, prefix[:]...)
	return append(dst, value...), nil
}

// DecodeField reads one field from buf starting at offset. It returns a copy of
// the field's bytes and the offset of whatever follows it.
func DecodeField(buf []byte, offset int) (value []byte, next int, err error) {
	if offset < 0 || len(buf)-offset < LengthSize {
		return nil, offset, ErrTruncatedField
	}

	length := int32(binary.LittleEndian.Uint32(buf[offset:]))
	if length < 0 {
		return nil, offset, ErrInvalidFieldLength
	}

	start := offset + LengthSize
	if int64(len(buf)-start) < int64(length) {
		return nil, offset, ErrTruncatedField
	}

	end := start + int(length)
	value = make([]byte, length)
	copy(value, buf[start:end])

	return value, end, nil
}
