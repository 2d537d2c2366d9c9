package protocol_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/parcel/protocol"
)

var _ = Describe("Writer", func() {
	Describe("EncodeFrame()", func() {
		It("writes the opcode, the payload length and the payload", func() {
			b, err := protocol.EncodeFrame(protocol.OpPacket, []byte("abc"))
			Expect(err).To(Succeed())
			Expect(b).To(Equal([]byte{1, 0, 0, 0, 3, 0, 0, 0, 'a', 'b', 'c'}))
		})

		It("writes an empty payload as a zero length", func() {
			b, err := protocol.EncodeFrame(protocol.OpMessage, nil)
			Expect(err).To(Succeed())
			Expect(b).To(Equal([]byte{0, 0, 0, 0, 0, 0, 0, 0}))
		})

		It("encodes negative opcodes as two's complement", func() {
			b, err := protocol.EncodeFrame(-2, nil)
			Expect(err).To(Succeed())
			Expect(b[:4]).To(Equal([]byte{0xfe, 0xff, 0xff, 0xff}))
		})
	})

	Describe("WriteMessage()", func() {
		It("includes the NUL terminator and no inner length", func() {
			w := &bytes.Buffer{}

			Expect(protocol.WriteMessage(w, "hola")).To(Succeed())
			Expect(w.Bytes()).To(Equal([]byte{0, 0, 0, 0, 5, 0, 0, 0, 'h', 'o', 'l', 'a', 0}))
		})

		It("sends an empty string as just the terminator", func() {
			w := &bytes.Buffer{}

			Expect(protocol.WriteMessage(w, "")).To(Succeed())
			Expect(w.Bytes()).To(Equal([]byte{0, 0, 0, 0, 1, 0, 0, 0, 0}))
		})
	})

	Describe("WriteFrame()", func() {
		It("writes the same bytes as EncodeFrame", func() {
			w := &bytes.Buffer{}
			Expect(protocol.WriteFrame(w, 42, []byte("x"))).To(Succeed())

			b, err := protocol.EncodeFrame(42, []byte("x"))
			Expect(err).To(Succeed())
			Expect(w.Bytes()).To(Equal(b))
		})
	})

	Describe("Opcode", func() {
		It("has readable names", func() {
			Expect(protocol.OpMessage.String()).To(Equal("MESSAGE"))
			Expect(protocol.OpPacket.String()).To(Equal("PACKET"))
			Expect(protocol.Opcode(42).String()).To(Equal("UNKNOWN(42)"))
			Expect(protocol.Opcode(42).Known()).To(BeFalse())
		})
	})
})
