package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/lantern/protocol"
)

var _ = Describe("Parsing", func() {
	Describe("ParseResponse()", func() {
		DescribeTable("classifies the literal frames",
			func(line string, verb protocol.Verb) {
				f, err := protocol.ParseResponse([]byte(line))
				Expect(err).To(Succeed())
				Expect(f.GetVerb()).To(Equal(verb))
			},
			Entry("PING", "PING", protocol.PING),
			Entry("PONG", "PONG", protocol.PONG),
			Entry("+OK", "+OK", protocol.OK),
			Entry("-ERR", "-ERR 'Unknown Protocol Operation'", protocol.ERR),
		)

		It("strips the quotes from -ERR messages", func() {
			f, err := protocol.ParseResponse([]byte("-ERR 'Authorization Violation'"))
			Expect(err).To(Succeed())

			e, ok := f.(*protocol.Err)
			Expect(ok).To(BeTrue())
			Expect(e.Message).To(Equal("Authorization Violation"))
		})

		It("returns an error for an empty line", func() {
			_, err := protocol.ParseResponse([]byte{})
			Expect(err).To(MatchError(protocol.ErrEmptyFrame))
		})

		It("returns an error if the verb is unknown", func() {
			_, err := protocol.ParseResponse([]byte("EVIL foo bar"))
			Expect(errors.Is(err, protocol.ErrUnknownVerb)).To(BeTrue())

			_, err = protocol.ParseResponse([]byte("NOSPACE"))
			Expect(errors.Is(err, protocol.ErrUnknownVerb)).To(BeTrue())
		})

		It("refuses verbs only clients send", func() {
			for _, line := range []string{"PUB foo 3", "SUB foo 1", "UNSUB 1", "CONNECT {}"} {
				_, err := protocol.ParseResponse([]byte(line))
				Expect(errors.Is(err, protocol.ErrNotReceivable)).To(BeTrue(), line)
			}
		})

		Describe("MSG", func() {
			It("parses three tokens", func() {
				f, err := protocol.ParseResponse([]byte("MSG updates 9 11"))
				Expect(err).To(Succeed())

				msg, ok := f.(*protocol.Msg)
				Expect(ok).To(BeTrue())
				Expect(msg.Subject).To(Equal("updates"))
				Expect(msg.SID).To(Equal("9"))
				Expect(msg.ReplyTo).To(BeEmpty())
				Expect(msg.PayloadLength()).To(Equal(11))
			})

			It("parses four tokens with a reply subject", func() {
				f, err := protocol.ParseResponse([]byte("MSG updates 9 _INBOX.abc 0"))
				Expect(err).To(Succeed())

				msg := f.(*protocol.Msg)
				Expect(msg.ReplyTo).To(Equal("_INBOX.abc"))
				Expect(msg.PayloadLength()).To(Equal(0))
			})

			It("ignores repeated spaces", func() {
				f, err := protocol.ParseResponse([]byte("MSG  updates   9  5"))
				Expect(err).To(Succeed())
				Expect(f.(*protocol.Msg).Subject).To(Equal("updates"))
			})

			DescribeTable("rejects malformed bodies",
				func(line string) {
					_, err := protocol.ParseResponse([]byte(line))
					Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
				},
				Entry("too few tokens", "MSG updates 9"),
				Entry("a length that isn't a number", "MSG updates 9 many"),
				Entry("a negative length", "MSG updates 9 -1"),
				Entry("too many tokens", "MSG updates 9 reply 5 extra"),
			)
		})

		Describe("HMSG", func() {
			It("parses four tokens", func() {
				f, err := protocol.ParseResponse([]byte("HMSG updates 2 16 21"))
				Expect(err).To(Succeed())

				msg, ok := f.(*protocol.HMsg)
				Expect(ok).To(BeTrue())
				Expect(msg.Subject).To(Equal("updates"))
				Expect(msg.SID).To(Equal("2"))
				Expect(msg.HeaderLength()).To(Equal(16))
				Expect(msg.PayloadLength()).To(Equal(5))
			})

			It("parses five tokens with a reply subject", func() {
				f, err := protocol.ParseResponse([]byte("HMSG updates 2 _INBOX.x 16 16"))
				Expect(err).To(Succeed())

				msg := f.(*protocol.HMsg)
				Expect(msg.ReplyTo).To(Equal("_INBOX.x"))
				Expect(msg.PayloadLength()).To(Equal(0))
			})

			It("rejects a total smaller than the headers", func() {
				_, err := protocol.ParseResponse([]byte("HMSG updates 2 16 4"))
				Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
			})

			It("rejects three tokens", func() {
				_, err := protocol.ParseResponse([]byte("HMSG updates 2 16"))
				Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
			})
		})

		Describe("INFO", func() {
			It("parses the required fields and defaults the rest", func() {
				line := `INFO {"server_id":"S1","version":"2.9.0","host":"0.0.0.0","port":4222,"proto":1,"max_payload":1048576}`

				f, err := protocol.ParseResponse([]byte(line))
				Expect(err).To(Succeed())

				info, ok := f.(*protocol.ServerInfo)
				Expect(ok).To(BeTrue())
				Expect(info.ServerID).To(Equal("S1"))
				Expect(info.Port).To(Equal(4222))
				Expect(info.MaxPayload).To(Equal(int64(1048576)))
				Expect(info.TLSRequired).To(BeFalse())
				Expect(info.ConnectURLs).To(BeEmpty())
				Expect(info.ConnectURLs).NotTo(BeNil())
				Expect(info.ClientID).To(BeNil())
			})

			It("parses the optional fields", func() {
				line := `INFO {"server_id":"S1","version":"2.9.0","go":"go1.21","host":"h","port":1,"proto":1,"max_payload":10,` +
					`"tls_required":true,"auth_required":true,"connect_urls":["a:1","b:2"],"client_id":42,"ldm":true}`

				f, err := protocol.ParseResponse([]byte(line))
				Expect(err).To(Succeed())

				info := f.(*protocol.ServerInfo)
				Expect(info.GoVersion).To(Equal("go1.21"))
				Expect(info.TLSRequired).To(BeTrue())
				Expect(info.AuthRequired).To(BeTrue())
				Expect(info.ConnectURLs).To(Equal([]string{"a:1", "b:2"}))
				Expect(info.ClientID).NotTo(BeNil())
				Expect(*info.ClientID).To(Equal(uint64(42)))
				Expect(info.LameDuckMode).To(BeTrue())
			})

			It("returns an error when a required field is missing", func() {
				_, err := protocol.ParseResponse([]byte(`INFO {"server_id":"S1"}`))
				Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
			})

			It("returns an error when the body isn't JSON", func() {
				_, err := protocol.ParseResponse([]byte(`INFO nope`))
				Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
			})
		})
	})

	Describe("ParseRequest()", func() {
		It("parses PING and PONG in any case", func() {
			f, _, err := protocol.ParseRequest([]byte("ping"))
			Expect(err).To(Succeed())
			Expect(f.GetVerb()).To(Equal(protocol.PING))

			f, _, err = protocol.ParseRequest([]byte("PONG"))
			Expect(err).To(Succeed())
			Expect(f.GetVerb()).To(Equal(protocol.PONG))
		})

		It("parses CONNECT", func() {
			f, _, err := protocol.ParseRequest([]byte(`CONNECT {"verbose":true,"name":"svc","headers":true}`))
			Expect(err).To(Succeed())

			connect := f.(*protocol.Connect)
			Expect(connect.Options.Verbose).To(BeTrue())
			Expect(connect.Options.Name).To(Equal("svc"))
			Expect(connect.Options.Headers).To(BeTrue())
		})

		It("returns the payload length of PUB", func() {
			f, n, err := protocol.ParseRequest([]byte("PUB updates _INBOX.1 5"))
			Expect(err).To(Succeed())
			Expect(n).To(Equal(5))

			pub := f.(*protocol.Pub)
			Expect(pub.Subject).To(Equal("updates"))
			Expect(pub.ReplyTo).To(Equal("_INBOX.1"))
		})

		It("parses SUB with and without a queue group", func() {
			f, _, err := protocol.ParseRequest([]byte("SUB updates 1"))
			Expect(err).To(Succeed())
			Expect(f).To(Equal(&protocol.Sub{Subject: "updates", SID: "1"}))

			f, _, err = protocol.ParseRequest([]byte("SUB updates workers 2"))
			Expect(err).To(Succeed())
			Expect(f).To(Equal(&protocol.Sub{Subject: "updates", Queue: "workers", SID: "2"}))
		})

		It("parses UNSUB with and without a limit", func() {
			f, _, err := protocol.ParseRequest([]byte("UNSUB 1"))
			Expect(err).To(Succeed())
			Expect(f).To(Equal(&protocol.Unsub{SID: "1"}))

			f, _, err = protocol.ParseRequest([]byte("UNSUB 1 10"))
			Expect(err).To(Succeed())
			Expect(f).To(Equal(&protocol.Unsub{SID: "1", MaxMsgs: 10}))
		})

		It("refuses verbs only servers send", func() {
			_, _, err := protocol.ParseRequest([]byte("MSG updates 1 5"))
			Expect(errors.Is(err, protocol.ErrNotReceivable)).To(BeTrue())
		})

		It("rejects a PUB without a length", func() {
			_, _, err := protocol.ParseRequest([]byte("PUB updates"))
			Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
		})
	})

	Describe("HMsg.SetHeaders()", func() {
		It("reads an inline status from the version line", func() {
			msg := &protocol.HMsg{}
			msg.SetHeaders([]byte("NATS/1.0 503\r\n\r\n"))

			Expect(msg.Status).To(Equal(503))
			Expect(msg.IsNoResponders()).To(BeTrue())

			status, ok := msg.Header("status")
			Expect(ok).To(BeTrue())
			Expect(status).To(Equal("503"))
		})

		It("ignores a second token that isn't three characters", func() {
			msg := &protocol.HMsg{}
			msg.SetHeaders([]byte("NATS/1.0 5030\r\n\r\n"))

			Expect(msg.Status).To(BeZero())
			Expect(msg.IsNoResponders()).To(BeFalse())
		})

		It("reads key value pairs case insensitively", func() {
			msg := &protocol.HMsg{}
			msg.SetHeaders([]byte("NATS/1.0\r\nTrace-Id: abc\r\n\r\n"))

			Expect(msg.Status).To(BeZero())

			v, ok := msg.Header("trace-id")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("abc"))
		})

		It("keeps the inline status over a status header line", func() {
			msg := &protocol.HMsg{}
			msg.SetHeaders([]byte("NATS/1.0 503\r\nStatus: 200\r\n\r\n"))

			Expect(msg.Status).To(Equal(503))

			status, ok := msg.Header("status")
			Expect(ok).To(BeTrue())
			Expect(status).To(Equal("503"))
		})

		It("reads a status header line when there is no inline status", func() {
			msg := &protocol.HMsg{}
			msg.SetHeaders([]byte("NATS/1.0\r\nStatus: 200\r\n\r\n"))

			Expect(msg.Status).To(BeZero())

			status, ok := msg.Header("status")
			Expect(ok).To(BeTrue())
			Expect(status).To(Equal("200"))
		})
	})

	DescribeTable("IsBlank()",
		func(s string, blank bool) {
			Expect(protocol.IsBlank(s)).To(Equal(blank))
		},
		Entry("empty", "", true),
		Entry("a space", " ", true),
		Entry("only whitespace", "\t\r\n", true),
		Entry("a letter", "a", false),
		Entry("a padded letter", " a ", false),
	)

	Describe("SplitFields()", func() {
		It("keeps the remainder in the last field", func() {
			Expect(protocol.SplitFields("a b c d", 2)).To(Equal([]string{"a", "b c d"}))
		})

		It("drops empty fields", func() {
			Expect(protocol.SplitFields("a  b ", 0)).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("LookupVerb()", func() {
		It("is case insensitive", func() {
			verb, ok := protocol.LookupVerb("hmsg")
			Expect(ok).To(BeTrue())
			Expect(verb).To(Equal(protocol.HMSG))
		})

		It("does not know about made up verbs", func() {
			_, ok := protocol.LookupVerb("QUIT")
			Expect(ok).To(BeFalse())
		})
	})
})
