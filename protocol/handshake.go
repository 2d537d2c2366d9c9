package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrHandshakeRejected = errors.New("Handshake rejected by the server")
	ErrHandshakeMismatch = errors.New("Handshake failed, the client sent an unexpected value")
	ErrPeerClosed        = errors.New("Peer closed the connection")
)

// ClientHandshake sends the hello and waits for the server's verdict. It does
// not retry.
func ClientHandshake(rw io.ReadWriter) error {
	if err := WriteHandshake(rw, HandshakeHello); err != nil {
		return fmt.Errorf("Failed to send handshake: %w", err)
	}

	reply, err := readHandshake(rw)
	if err != nil {
		return err
	}

	if reply != HandshakeOK {
		return fmt.Errorf("%w: server replied %d", ErrHandshakeRejected, reply)
	}

	return nil
}

// ServerHandshake waits for the client's hello and replies to it. A wrong
// hello is answered with HandshakeError and reported as ErrHandshakeMismatch,
// the caller is expected to close the connection.
func ServerHandshake(rw io.ReadWriter) error {
	hello, err := readHandshake(rw)
	if err != nil {
		return err
	}

	if hello != HandshakeHello {
		if err := WriteHandshake(rw, HandshakeError); err != nil {
			return fmt.Errorf("Failed to reject handshake: %w", err)
		}

		return fmt.Errorf("%w: got %d", ErrHandshakeMismatch, hello)
	}

	if err := WriteHandshake(rw, HandshakeOK); err != nil {
		return fmt.Errorf("Failed to accept handshake: %w", err)
	}

	return nil
}

func readHandshake(r io.Reader) (int32, error) {
	var buf [LengthSize]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrPeerClosed
		}

		return 0, lost("handshake", err)
	}

	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}
