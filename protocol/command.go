package protocol

import "strconv"

// Opcode tags the payload kind of a frame.
type Opcode int32

const (
	// OpMessage frames carry a single NUL terminated string.
	OpMessage Opcode = 0

	// OpPacket frames carry an ordered list of length prefixed fields.
	OpPacket Opcode = 1

	// OpDisconnect is never sent. ReadOpcode returns it, together with
	// closed, when the peer closed the connection before the next opcode.
	OpDisconnect Opcode = -1
)

func (o Opcode) String() string {
	switch o {
	case OpMessage:
		return "MESSAGE"
	case OpPacket:
		return "PACKET"
	case OpDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(o)) + ")"
	}
}

// Known returns true for opcodes that may appear on the wire.
func (o Opcode) Known() bool {
	return o == OpMessage || o == OpPacket
}

const (
	// HandshakeHello is the value a client opens the connection with.
	HandshakeHello int32 = 1

	// HandshakeOK is the server reply when the hello matched.
	HandshakeOK int32 = 0

	// HandshakeError is the server reply when it did not.
	HandshakeError int32 = -1
)
