package protocol_test

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/parcel/protocol"
)

type readWriter struct {
	io.Reader
	io.Writer
}

func int32Bytes(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

var _ = Describe("Handshake", func() {
	Describe("ClientHandshake()", func() {
		It("sends 1 and succeeds when the server replies 0", func() {
			out := &bytes.Buffer{}
			rw := readWriter{bytes.NewReader(int32Bytes(0)), out}

			Expect(protocol.ClientHandshake(rw)).To(Succeed())
			Expect(out.Bytes()).To(Equal([]byte{1, 0, 0, 0}))
		})

		It("fails without retrying when the server replies anything else", func() {
			out := &bytes.Buffer{}
			rw := readWriter{bytes.NewReader(int32Bytes(-1)), out}

			err := protocol.ClientHandshake(rw)
			Expect(errors.Is(err, protocol.ErrHandshakeRejected)).To(BeTrue())
			Expect(out.Len()).To(Equal(4))
		})

		It("reports a server that hung up", func() {
			rw := readWriter{bytes.NewReader(nil), &bytes.Buffer{}}
			Expect(protocol.ClientHandshake(rw)).To(MatchError(protocol.ErrPeerClosed))
		})
	})

	Describe("ServerHandshake()", func() {
		It("replies 0 to a hello of 1", func() {
			out := &bytes.Buffer{}
			rw := readWriter{bytes.NewReader(int32Bytes(1)), out}

			Expect(protocol.ServerHandshake(rw)).To(Succeed())
			Expect(out.Bytes()).To(Equal(int32Bytes(0)))
		})

		It("replies -1 to any other hello", func() {
			out := &bytes.Buffer{}
			rw := readWriter{bytes.NewReader(int32Bytes(7)), out}

			err := protocol.ServerHandshake(rw)
			Expect(errors.Is(err, protocol.ErrHandshakeMismatch)).To(BeTrue())
			Expect(out.Bytes()).To(Equal([]byte{0xff, 0xff, 0xff, 0xff}))
		})

		It("returns ErrConnectionLost for a partial hello", func() {
			rw := readWriter{bytes.NewReader([]byte{1, 0}), &bytes.Buffer{}}

			err := protocol.ServerHandshake(rw)
			Expect(errors.Is(err, protocol.ErrConnectionLost)).To(BeTrue())
		})
	})
})
