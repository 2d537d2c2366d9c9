package transport_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/luma/parcel/transport"
)

var _ = Describe("Handlers", func() {
	ctx := context.Background()

	Describe("LogHandler", func() {
		It("logs the message text", func() {
			core, logs := observer.New(zapcore.InfoLevel)
			h := transport.NewLogHandler(zap.New(core))

			Expect(h.HandleMessage(ctx, "conn-1", "hola")).To(Succeed())

			entries := logs.FilterMessage("Received message").All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("message", "hola"))
			Expect(entries[0].ContextMap()).To(HaveKeyWithValue("conn", "conn-1"))
		})

		It("logs every field of a packet in order", func() {
			core, logs := observer.New(zapcore.InfoLevel)
			h := transport.NewLogHandler(zap.New(core))

			Expect(h.HandlePacket(ctx, "conn-1", [][]byte{[]byte("a"), []byte("bb")})).To(Succeed())

			fields := logs.FilterMessage("Packet field").All()
			Expect(fields).To(HaveLen(2))
			Expect(fields[0].ContextMap()).To(HaveKeyWithValue("value", "a"))
			Expect(fields[1].ContextMap()).To(HaveKeyWithValue("value", "bb"))
		})
	})

	Describe("Handlers()", func() {
		It("calls every handler and combines their errors", func() {
			failing := &recorder{fail: true}
			ok := &recorder{}
			alsoFailing := &recorder{fail: true}

			h := transport.Handlers(failing, ok, alsoFailing)

			err := h.HandleMessage(ctx, "conn-1", "x")
			Expect(multierr.Errors(err)).To(ConsistOf(errRecorder, errRecorder))

			Expect(h.HandlePacket(ctx, "conn-1", nil)).NotTo(Succeed())

			Expect(failing.Entries()).To(HaveLen(2))
			Expect(ok.Entries()).To(HaveLen(2))
			Expect(alsoFailing.Entries()).To(HaveLen(2))
		})

		It("succeeds with no handlers", func() {
			Expect(transport.Handlers().HandleMessage(ctx, "conn-1", "x")).To(Succeed())
		})
	})
})
