package client_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/luma/lantern/transport"
)

const infoLine = `INFO {"server_id":"S1","version":"2.9.0","host":"127.0.0.1","port":4222,"proto":1,"max_payload":64}` + "\r\n"

// scriptedTransport is an in-memory Transport. Whatever the server sends is
// queued in `in`, and every write is recorded and handed to respond, whose
// result is queued as the server's answer.
type scriptedTransport struct {
	refuse     map[string]bool
	dialed     []string
	connected  bool
	tlsEnabled bool

	greeting string
	in       bytes.Buffer
	writes   []string

	respond func(frame string) string
}

func newScriptedTransport(server *fakeServer) *scriptedTransport {
	return &scriptedTransport{
		refuse:   map[string]bool{},
		greeting: infoLine,
		respond:  server.respond,
	}
}

func (t *scriptedTransport) Connect(_ context.Context, addr string, _ time.Duration) error {
	t.dialed = append(t.dialed, addr)

	if t.connected {
		return transport.ErrAlreadyConnected
	}

	if t.refuse[addr] {
		return fmt.Errorf("dial %s: %w", addr, transport.ErrConnectionRefused)
	}

	t.connected = true
	t.in.Reset()
	t.in.WriteString(t.greeting)

	return nil
}

func (t *scriptedTransport) EnableTLS(*tls.Config) error {
	t.tlsEnabled = true
	return nil
}

func (t *scriptedTransport) Write(data []byte) error {
	if !t.connected {
		return transport.ErrNotConnected
	}

	t.writes = append(t.writes, string(data))

	if t.respond != nil {
		t.in.WriteString(t.respond(string(data)))
	}

	return nil
}

func (t *scriptedTransport) ReadLine() ([]byte, error) {
	data := t.in.Bytes()

	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		if len(data) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, io.EOF
	}

	line := append([]byte{}, data[:idx]...)
	t.in.Next(idx + 2)

	return line, nil
}

func (t *scriptedTransport) ReadExact(n int) ([]byte, error) {
	if t.in.Len() < n {
		return nil, io.ErrUnexpectedEOF
	}

	return append([]byte{}, t.in.Next(n)...), nil
}

func (t *scriptedTransport) Close() error {
	t.connected = false
	return nil
}

func (t *scriptedTransport) IsConnected() bool {
	return t.connected
}

// serverSends queues frames as if the server had sent them unprompted.
func (t *scriptedTransport) serverSends(frames string) {
	t.in.WriteString(frames)
}

// written returns every write whose first line starts with prefix.
func (t *scriptedTransport) written(prefix string) []string {
	var found []string
	for _, w := range t.writes {
		if strings.HasPrefix(w, prefix) {
			found = append(found, w)
		}
	}
	return found
}

// fakeServer answers client frames the way a server would.
type fakeServer struct {
	verbose      bool
	noResponders bool

	// replyBeforeOk sends replies ahead of the +OK of the PUB that caused them
	replyBeforeOk bool

	// handlers answer requests by subject, returning the reply payload
	handlers map[string]func(payload string) string

	// subs maps subjects to sids
	subs map[string]string
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		handlers: map[string]func(string) string{},
		subs:     map[string]string{},
	}
}

func (s *fakeServer) respond(frame string) string {
	line, payload, _ := strings.Cut(frame, "\r\n")
	payload = strings.TrimSuffix(payload, "\r\n")

	parts := strings.Fields(line)
	if len(parts) == 0 {
		return ""
	}

	var reply string

	switch parts[0] {
	case "PING":
		return "PONG\r\n"

	case "PONG":
		return ""

	case "SUB":
		s.subs[parts[1]] = parts[len(parts)-1]

	case "UNSUB":
		for subject, sid := range s.subs {
			if sid == parts[1] {
				delete(s.subs, subject)
			}
		}

	case "PUB":
		if len(parts) == 4 {
			replyTo := parts[2]
			sid := s.subs[replyTo]

			if handler, ok := s.handlers[parts[1]]; ok {
				body := handler(payload)
				reply = fmt.Sprintf("MSG %s %s %d\r\n%s\r\n", replyTo, sid, len(body), body)
			} else if s.noResponders {
				reply = fmt.Sprintf("HMSG %s %s 16 16\r\nNATS/1.0 503\r\n\r\n\r\n", replyTo, sid)
			}
		}
	}

	if !s.verbose {
		return reply
	}

	if s.replyBeforeOk {
		return reply + "+OK\r\n"
	}

	return "+OK\r\n" + reply
}
