package transport_test

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/parcel/client"
	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/transport"
)

var _ = Describe("transport", func() {
	Describe("TCP", func() {
		var rec *recorder

		BeforeEach(func() {
			rec = &recorder{}
		})

		It("listens on the address it reports", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec})

			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			conn, err := net.Dial("tcp", tcp.Addr().String())
			Expect(err).To(Succeed())
			conn.Close()
		})

		It("shares one port between several SO_REUSEPORT listeners", func() {
			tcp := makeTCPServer(transport.Options{
				Handler:      rec,
				Reuseport:    true,
				NumListeners: 2,
			})

			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			for i := 0; i < 4; i++ {
				conn, err := net.Dial("tcp", tcp.Addr().String())
				Expect(err).To(Succeed())
				conn.Close()
			}
		})

		It("fails to start when the port is taken", func() {
			taken, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(Succeed())
			defer taken.Close()

			port := taken.Addr().(*net.TCPAddr).Port
			tcp := transport.NewTCP(transport.Options{
				Host: "127.0.0.1",
				Port: port,
				Log:  zap.NewNop(),
			})

			err = tcp.Start(context.Background())
			Expect(errors.Is(err, protocol.ErrTransport)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(strconv.Itoa(port)))
		})

		It("stops with a transport error when a listener can't accept", func() {
			acceptErr := errors.New("accept tcp: too many open files")

			tcp := transport.NewTCP(transport.Options{
				Host:    "127.0.0.1",
				Handler: rec,
				Log:     zap.NewNop(),
				Listen: func(network, addr string) (net.Listener, error) {
					return &brokenListener{err: acceptErr}, nil
				},
			})

			Expect(tcp.Start(context.Background())).To(Succeed())
			Eventually(tcp.Done()).Should(BeClosed())

			Expect(errors.Is(tcp.Err(), protocol.ErrTransport)).To(BeTrue())
			Expect(tcp.Err().Error()).To(ContainSubstring("too many open files"))

			Expect(tcp.Close()).To(Succeed())
		})

		It("has no error after a clean Close()", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec})

			Expect(tcp.Close()).To(Succeed())
			Expect(tcp.Done()).To(BeClosed())
			Expect(tcp.Err()).To(BeNil())
		})

		It("delivers messages and packets from a client to the handler", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec})

			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			c := connectClient(tcp)

			Expect(c.SendMessage("hola")).To(Succeed())

			p := protocol.NewFieldPacket()
			Expect(p.AddString("a")).To(Succeed())
			Expect(p.AddString("bb")).To(Succeed())
			Expect(p.AddString("ccc")).To(Succeed())
			Expect(c.SendPacket(p)).To(Succeed())

			Expect(c.Disconnect()).To(Succeed())

			Eventually(rec.Entries).Should(Equal([]received{
				{ConnID: "conn-1", Text: "hola"},
				{ConnID: "conn-1", Fields: []string{"a", "bb", "ccc"}, Packet: true},
			}))
		})

		It("keeps serving after an unknown opcode", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec})

			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			conn := rawHandshake(tcp, protocol.HandshakeHello)
			defer conn.Close()

			Expect(protocol.WriteFrame(conn, 42, []byte("??"))).To(Succeed())
			Expect(protocol.WriteMessage(conn, "after")).To(Succeed())

			Eventually(rec.Entries).Should(Equal([]received{{ConnID: "conn-1", Text: "after"}}))
		})

		It("serves several clients at once", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec})

			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			first := connectClient(tcp)
			second := connectClient(tcp)

			Expect(second.SendMessage("from second")).To(Succeed())
			Expect(first.SendMessage("from first")).To(Succeed())

			Eventually(rec.Entries).Should(ConsistOf(
				received{ConnID: "conn-1", Text: "from first"},
				received{ConnID: "conn-2", Text: "from second"},
			))

			Expect(first.Disconnect()).To(Succeed())
			Expect(second.Disconnect()).To(Succeed())
		})

		It("answers a bad handshake with -1 and closes the connection", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec})

			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			conn := rawHandshake(tcp, 7)
			defer conn.Close()

			// rawHandshake already read the -1, the next read sees the close
			waitForClose(conn)
		})

		It("closes Done() once its single client leaves", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec, SingleClient: true})

			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			c := connectClient(tcp)
			Consistently(tcp.Done(), 100*time.Millisecond).ShouldNot(BeClosed())

			Expect(c.Disconnect()).To(Succeed())
			Eventually(tcp.Done()).Should(BeClosed())
		})

		It("closes active connections on Close()", func() {
			tcp := makeTCPServer(transport.Options{Handler: rec})

			conn := rawHandshake(tcp, protocol.HandshakeHello)
			defer conn.Close()

			Expect(tcp.Close()).To(Succeed())
			Expect(tcp.Done()).To(BeClosed())

			waitForClose(conn)
		})

		Describe("Shutdown()", func() {
			It("waits for clients to leave", func() {
				tcp := makeTCPServer(transport.Options{Handler: rec})
				c := connectClient(tcp)

				go func() {
					time.Sleep(50 * time.Millisecond)
					c.Disconnect()
				}()

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				Expect(tcp.Shutdown(ctx)).To(Succeed())
			})

			It("closes clients that outstay the context", func() {
				tcp := makeTCPServer(transport.Options{Handler: rec})

				conn := rawHandshake(tcp, protocol.HandshakeHello)
				defer conn.Close()

				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				defer cancel()

				err := tcp.Shutdown(ctx)
				Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

				waitForClose(conn)
			})
		})
	})
})

// brokenListener fails every Accept with err.
type brokenListener struct {
	err error
}

func (b *brokenListener) Accept() (net.Conn, error) {
	return nil, b.err
}

func (b *brokenListener) Close() error {
	return nil
}

func (b *brokenListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4444}
}

// waitForClose expects the server to have closed conn, or to close it soon.
func waitForClose(conn net.Conn) {
	Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	one := make([]byte, 1)
	_, err := conn.Read(one)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		Fail("The client was never closed by the server")
	}

	Expect(err).To(HaveOccurred())
}

func makeTCPServer(options transport.Options) *transport.TCP {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	options.Host = "127.0.0.1"
	options.Port = 0
	options.Limits = protocol.DefaultLimits()
	options.Log = log

	if options.NumListeners == 0 {
		options.NumListeners = 1
	}

	tcp := transport.NewTCP(options)
	Expect(tcp.Start(context.Background())).To(Succeed())

	return tcp
}

func connectClient(tcp *transport.TCP) *client.Conn {
	c := client.New(zap.NewNop())
	Expect(c.Connect(context.Background(), tcp.Addr().String())).To(Succeed())
	Expect(c.Handshake()).To(Succeed())

	return c
}

// rawHandshake dials tcp, sends hello and checks the reply matches what the
// server should say to it.
func rawHandshake(tcp *transport.TCP, hello int32) net.Conn {
	conn, err := net.Dial("tcp", tcp.Addr().String())
	Expect(err).To(Succeed())

	Expect(protocol.WriteHandshake(conn, hello)).To(Succeed())

	reply := make([]byte, 4)
	_, err = io.ReadFull(conn, reply)
	Expect(err).To(Succeed())

	if hello == protocol.HandshakeHello {
		Expect(reply).To(Equal([]byte{0, 0, 0, 0}))
	} else {
		Expect(reply).To(Equal([]byte{0xff, 0xff, 0xff, 0xff}))
	}

	return conn
}
