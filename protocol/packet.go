package protocol

import (
	"errors"
	"io"
)

var ErrPacketConsumed = errors.New("Packet has already been sent and can no longer be used")

// Packet accumulates fields for one outgoing frame.
//
// The payload is kept pre-encoded, so Size is always the sum of
// 4 + len(field) over every field added and adding a field never re-encodes
// the ones before it.
//
// A Packet is not safe for concurrent use. Once written with WriteTo it is
// consumed and every further Add or WriteTo returns ErrPacketConsumed.
type Packet struct {
	opcode Opcode
	buf    []byte
	count  int
	sent   bool
}

func NewPacket(op Opcode) *Packet {
	return &Packet{opcode: op}
}

// NewFieldPacket returns an empty PACKET.
func NewFieldPacket() *Packet {
	return NewPacket(OpPacket)
}

func (p *Packet) Opcode() Opcode {
	return p.opcode
}

// Add appends value as the next field.
func (p *Packet) Add(value []byte) error {
	if p.sent {
		return ErrPacketConsumed
	}

	buf, err := AppendField(p.buf, value)
	if err != nil {
		return err
	}

	p.buf = buf
	p.count++

	return nil
}

func (p *Packet) AddString(s string) error {
	return p.Add([]byte(s))
}

// Size is the payload length in bytes.
func (p *Packet) Size() int {
	return len(p.buf)
}

// Len is the number of fields added.
func (p *Packet) Len() int {
	return p.count
}

// Payload returns the encoded fields in the order they were added. The
// returned slice must not be modified, its capacity is clipped so appending
// to it can never write into the packet.
func (p *Packet) Payload() []byte {
	if p.buf == nil {
		return []byte{}
	}

	return p.buf[:len(p.buf):len(p.buf)]
}

// Bytes returns the full wire frame for the packet.
func (p *Packet) Bytes() ([]byte, error) {
	return EncodeFrame(p.opcode, p.buf)
}

// WriteTo writes the frame to w and marks the packet as consumed.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	if p.sent {
		return 0, ErrPacketConsumed
	}

	b, err := p.Bytes()
	if err != nil {
		return 0, err
	}

	p.sent = true

	n, err := w.Write(b)
	return int64(n), err
}
