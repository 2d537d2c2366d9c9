// This package implements serialising and parsing of the binary protocol that
// parcel clients and servers use to exchange messages.
//
// This protocol aims to be
//
//   - easy to implement in any language with a socket and a memcpy
//   - efficient to parse, the receiver always knows how many bytes come next
//   - wire compatible with the legacy C peers that speak it
//
//   - `Opcode`  - A 4 byte tag that says what kind of payload a frame carries.
//   - `Frame`   - One complete unit on the wire: opcode, payload length, payload.
//   - `Field`   - One length prefixed element inside a PACKET payload.
//   - `Packet`  - The in-memory builder for a frame, fields are appended in order.
//
// === General Syntax
//
//   - every integer is a signed 32bit little endian value
//   - there is no magic, version, or checksum, the handshake is the only check
//
// === Handshake
//
// Before any frame the client sends a single int32 and waits for the reply.
//
//	```
//	  > 01 00 00 00            (1)
//	  < 00 00 00 00            (0, accepted)
//	  < ff ff ff ff            (-1, rejected)
//	```
//
// A rejected handshake ends the connection on both sides.
//
// === Frames
//
//	```
//	  <opcode int32><payload_length int32><payload_length bytes>
//	```
//
// The receiver reads exactly 4 + 4 + payload_length bytes per frame, whatever
// the opcode is. This keeps the stream aligned even when the opcode is unknown.
//
// === MESSAGE (opcode 0)
//
// The payload is the raw bytes of a string followed by a single NUL byte. There
// is no inner length prefix.
//
//	```
//	  00 00 00 00  06 00 00 00  'h' 'e' 'l' 'l' 'o' 00
//	```
//
// === PACKET (opcode 1)
//
// The payload is zero or more fields, each one `<length int32><length bytes>`.
// Fields carry no type tag, their position in the packet is their only identity.
//
//	```
//	  01 00 00 00  12 00 00 00
//	    01 00 00 00 'a'
//	    02 00 00 00 'b' 'b'
//	    03 00 00 00 'c' 'c' 'c'
//	```
//
// === Disconnects
//
// A peer that closes the connection cleanly before sending an opcode is reported
// as the OpDisconnect sentinel (-1). Closing part way through a frame is
// reported as ErrConnectionLost.
package protocol
