package devserver_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/lantern/client"
	"github.com/luma/lantern/devserver"
	"github.com/luma/lantern/endpoint"
	"github.com/luma/lantern/transport"
)

func startServer(options devserver.Options) *devserver.Server {
	options.Host = "127.0.0.1"

	s := devserver.New(options)
	Expect(s.Start(context.Background())).To(Succeed())

	return s
}

func dial(s *devserver.Server, configure func(*client.Options)) *client.Conn {
	dir, err := endpoint.ParseDirectory([]string{s.URL()}, false)
	Expect(err).To(Succeed())

	opts := client.DefaultOptions()
	opts.Endpoints = dir
	opts.ReadTimeout = 2 * time.Second

	if configure != nil {
		configure(&opts)
	}

	conn, err := client.New(opts)
	Expect(err).To(Succeed())
	Expect(conn.Connect(context.Background())).To(Succeed())

	return conn
}

// drain reads messages until the read timeout passes.
func drain(conn *client.Conn) int {
	n := 0

	for {
		_, err := conn.NextMsg()
		if errors.Is(err, transport.ErrTimeout) {
			return n
		}
		Expect(err).To(Succeed())
		n++
	}
}

var _ = Describe("Server", func() {
	var s *devserver.Server

	BeforeEach(func() {
		s = startServer(devserver.Options{MaxPayload: 1024})
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
	})

	It("completes the handshake", func() {
		conn := dial(s, nil)
		defer conn.Close()

		Expect(conn.IsConnected()).To(BeTrue())
		Expect(conn.ServerInfo().ServerID).To(Equal(s.Info().ServerID))
		Expect(conn.ServerInfo().MaxPayload).To(Equal(int64(1024)))
		Eventually(s.NumConns).Should(Equal(1))
	})

	It("acknowledges commands in verbose mode", func() {
		conn := dial(s, func(o *client.Options) { o.Verbose = true })
		defer conn.Close()

		_, err := conn.Subscribe("updates", "")
		Expect(err).To(Succeed())
		Expect(conn.Publish("updates", []byte("x"), "")).To(Succeed())
	})

	It("routes published messages to matching subscriptions", func() {
		sub := dial(s, nil)
		defer sub.Close()

		pub := dial(s, nil)
		defer pub.Close()

		subscription, err := sub.Subscribe("updates.*", "")
		Expect(err).To(Succeed())
		Expect(sub.Ping()).To(Succeed())

		Expect(pub.Publish("updates.eu", []byte("hello"), "")).To(Succeed())
		Expect(pub.Publish("other", []byte("nope"), "")).To(Succeed())
		Expect(pub.Ping()).To(Succeed())

		msg, err := sub.NextMsg()
		Expect(err).To(Succeed())
		Expect(msg.GetSubject()).To(Equal("updates.eu"))
		Expect(msg.GetSID()).To(Equal(subscription.SID))
		Expect(string(msg.GetPayload())).To(Equal("hello"))
	})

	It("does not echo messages unless asked to", func() {
		quiet := dial(s, func(o *client.Options) { o.ReadTimeout = 200 * time.Millisecond })
		defer quiet.Close()

		echo := dial(s, func(o *client.Options) {
			o.Echo = true
			o.ReadTimeout = 200 * time.Millisecond
		})
		defer echo.Close()

		for _, conn := range []*client.Conn{quiet, echo} {
			_, err := conn.Subscribe("updates", "")
			Expect(err).To(Succeed())
			Expect(conn.Ping()).To(Succeed())
		}

		for _, conn := range []*client.Conn{quiet, echo} {
			Expect(conn.Publish("updates", []byte("x"), "")).To(Succeed())
			Expect(conn.Ping()).To(Succeed())
		}

		// quiet only sees echo's message, echo sees both
		Expect(drain(quiet)).To(Equal(1))
		Expect(drain(echo)).To(Equal(2))
	})

	It("delivers to one member of a queue group", func() {
		var members []*client.Conn

		for i := 0; i < 2; i++ {
			m := dial(s, func(o *client.Options) { o.ReadTimeout = 200 * time.Millisecond })
			defer m.Close()

			_, err := m.Subscribe("jobs", "workers")
			Expect(err).To(Succeed())
			Expect(m.Ping()).To(Succeed())

			members = append(members, m)
		}

		pub := dial(s, nil)
		defer pub.Close()

		for i := 0; i < 20; i++ {
			Expect(pub.Publish("jobs", []byte("job"), "")).To(Succeed())
		}
		Expect(pub.Ping()).To(Succeed())

		Expect(drain(members[0]) + drain(members[1])).To(Equal(20))
	})

	It("stops delivering after UNSUB", func() {
		sub := dial(s, func(o *client.Options) { o.ReadTimeout = 200 * time.Millisecond })
		defer sub.Close()

		pub := dial(s, nil)
		defer pub.Close()

		subscription, err := sub.Subscribe("updates", "")
		Expect(err).To(Succeed())
		Expect(sub.Unsubscribe(subscription.SID)).To(Succeed())
		Expect(sub.Ping()).To(Succeed())

		Expect(pub.Publish("updates", []byte("x"), "")).To(Succeed())
		Expect(pub.Ping()).To(Succeed())

		Expect(drain(sub)).To(BeZero())
	})

	It("answers requests", func() {
		responder := dial(s, nil)
		defer responder.Close()

		_, err := responder.Subscribe("help", "")
		Expect(err).To(Succeed())
		Expect(responder.Ping()).To(Succeed())

		done := make(chan error, 1)

		go func() {
			msg, err := responder.NextMsg()
			if err != nil {
				done <- err
				return
			}

			done <- responder.Publish(msg.GetReplyTo(), append([]byte("re: "), msg.GetPayload()...), "")
		}()

		requester := dial(s, nil)
		defer requester.Close()

		reply, err := requester.Request("help", []byte("please"), "")
		Expect(err).To(Succeed())
		Expect(string(reply.GetPayload())).To(Equal("re: please"))

		Eventually(done).Should(Receive(BeNil()))
	})

	It("tells requesters when nobody is listening", func() {
		requester := dial(s, func(o *client.Options) {
			o.Headers = true
			o.NoResponders = true
		})
		defer requester.Close()

		_, err := requester.Request("nobody", []byte("x"), "")
		Expect(errors.Is(err, client.ErrNoResponders)).To(BeTrue())

		// The connection is still usable afterwards
		Expect(requester.Ping()).To(Succeed())
	})

	It("rejects unknown operations and hangs up", func() {
		conn, err := net.Dial("tcp", s.Addr())
		Expect(err).To(Succeed())
		defer conn.Close()

		reader := bufio.NewReader(conn)

		info, err := reader.ReadString('\n')
		Expect(err).To(Succeed())
		Expect(info).To(HavePrefix("INFO {"))

		_, err = conn.Write([]byte("FOO bar\r\n"))
		Expect(err).To(Succeed())

		line, err := reader.ReadString('\n')
		Expect(err).To(Succeed())
		Expect(line).To(Equal("-ERR 'Unknown Protocol Operation'\r\n"))

		_, err = reader.ReadString('\n')
		Expect(err).To(MatchError(io.EOF))
	})

	It("rejects payloads over the limit", func() {
		conn, err := net.Dial("tcp", s.Addr())
		Expect(err).To(Succeed())
		defer conn.Close()

		reader := bufio.NewReader(conn)
		_, err = reader.ReadString('\n')
		Expect(err).To(Succeed())

		_, err = conn.Write([]byte("PUB updates 4096\r\n"))
		Expect(err).To(Succeed())

		line, err := reader.ReadString('\n')
		Expect(err).To(Succeed())
		Expect(line).To(Equal("-ERR 'Maximum Payload Violation'\r\n"))
	})

	It("drops connections when closed", func() {
		conn := dial(s, nil)
		Eventually(s.NumConns).Should(Equal(1))

		Expect(conn.Close()).To(Succeed())
		Eventually(s.NumConns).Should(BeZero())
	})
})
