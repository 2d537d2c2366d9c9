package protocol

// Request is one decoded frame received from a peer.
type Request interface {
	GetOpcode() Opcode
}

// MessageRequest is a MESSAGE frame.
type MessageRequest struct {
	Text string
}

func (m *MessageRequest) GetOpcode() Opcode {
	return OpMessage
}

// PacketRequest is a PACKET frame with its fields in the order they were added.
type PacketRequest struct {
	Fields [][]byte
}

func (p *PacketRequest) GetOpcode() Opcode {
	return OpPacket
}

// UnknownRequest is a complete frame whose opcode we do not understand.
type UnknownRequest struct {
	Op      Opcode
	Payload []byte
}

func (u *UnknownRequest) GetOpcode() Opcode {
	return u.Op
}

// DisconnectRequest means the peer closed the connection between frames.
type DisconnectRequest struct{}

func (d *DisconnectRequest) GetOpcode() Opcode {
	return OpDisconnect
}

var _ Request = (*MessageRequest)(nil)
var _ Request = (*PacketRequest)(nil)
var _ Request = (*UnknownRequest)(nil)
var _ Request = (*DisconnectRequest)(nil)
