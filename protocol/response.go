package protocol

import (
	"bytes"
	"strconv"
	"strings"
)

// StatusNoResponders is the inline header status a server uses to say that a
// request reached no subscriber.
const StatusNoResponders = 503

// Frame is any value that can travel over the wire in either direction.
type Frame interface {
	GetVerb() Verb
}

// Message is a payload bearing frame delivered to a subscription.
type Message interface {
	Frame
	GetSubject() string
	GetSID() string
	GetReplyTo() string
	GetPayload() []byte
}

type Ping struct{}

func (Ping) GetVerb() Verb { return PING }

type Pong struct{}

func (Pong) GetVerb() Verb { return PONG }

// Ok is the `+OK` acknowledgement sent by servers in verbose mode.
type Ok struct{}

func (Ok) GetVerb() Verb { return OK }

// Err is a `-ERR` line. Message holds whatever followed the marker, with the
// surrounding quotes removed.
type Err struct {
	Message string
}

func (*Err) GetVerb() Verb { return ERR }

func (e *Err) Error() string {
	return e.Message
}

// Msg is `MSG <subject> <sid> [reply-to] <#bytes>`. Payload is empty until
// the declared number of bytes has been read from the stream.
type Msg struct {
	Subject string
	SID     string
	ReplyTo string
	Bytes   int
	Payload []byte
}

func (*Msg) GetVerb() Verb { return MSG }
func (m *Msg) GetSubject() string { return m.Subject }
func (m *Msg) GetSID() string { return m.SID }
func (m *Msg) GetReplyTo() string { return m.ReplyTo }
func (m *Msg) GetPayload() []byte { return m.Payload }
func (m *Msg) SetPayload(p []byte) { m.Payload = p }
func (m *Msg) PayloadLength() int { return m.Bytes }
func (m *Msg) HeaderLength() int { return 0 }
func (m *Msg) SetHeaders(raw []byte) {}

// HMsg is `HMSG <subject> <sid> [reply-to] <#header bytes> <#total bytes>`.
// The header block counts its own trailing blank line.
type HMsg struct {
	Subject     string
	SID         string
	ReplyTo     string
	HeaderBytes int
	TotalBytes  int

	// RawHeaders is the header block exactly as read, terminator included.
	RawHeaders []byte
	Payload    []byte

	// Status is the inline status code from the version line, zero when absent.
	Status int

	headers map[string]string
}

func (*HMsg) GetVerb() Verb { return HMSG }
func (m *HMsg) GetSubject() string { return m.Subject }
func (m *HMsg) GetSID() string { return m.SID }
func (m *HMsg) GetReplyTo() string { return m.ReplyTo }
func (m *HMsg) GetPayload() []byte { return m.Payload }
func (m *HMsg) SetPayload(p []byte) { m.Payload = p }
func (m *HMsg) HeaderLength() int { return m.HeaderBytes }

// PayloadLength is the number of bytes following the header block.
func (m *HMsg) PayloadLength() int {
	return m.TotalBytes - m.HeaderBytes
}

// Header returns a header value. The inline status is available as "status".
func (m *HMsg) Header(key string) (string, bool) {
	if m.headers == nil {
		return "", false
	}

	v, ok := m.headers[strings.ToLower(key)]
	return v, ok
}

// SetHeaders parses a raw header block. The first line is the version line,
// e.g. `NATS/1.0 503`. When its second token is exactly three characters it
// is taken as the inline status, which a later `Status` line does not
// override. Remaining lines are `Key: Value` pairs.
func (m *HMsg) SetHeaders(raw []byte) {
	m.RawHeaders = raw
	m.headers = make(map[string]string)

	lines := bytes.Split(raw, Terminal)
	if len(lines) == 0 {
		return
	}

	var inlineStatus bool

	parts := SplitFields(string(lines[0]), 0)
	if len(parts) > 1 && len(parts[1]) == 3 {
		if status, err := strconv.Atoi(parts[1]); err == nil {
			m.Status = status
			m.headers["status"] = parts[1]
			inlineStatus = true
		}
	}

	for _, line := range lines[1:] {
		idx := bytes.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(string(line[:idx])))
		if key == "status" && inlineStatus {
			continue
		}
		m.headers[key] = strings.TrimSpace(string(line[idx+1:]))
	}
}

// IsNoResponders reports whether the server flagged this reply as having no
// responders.
func (m *HMsg) IsNoResponders() bool {
	return m.Status == StatusNoResponders
}

// PayloadFrame is implemented by the frames whose body follows the protocol
// line as a block of declared length.
type PayloadFrame interface {
	Message
	HeaderLength() int
	PayloadLength() int
	SetHeaders(raw []byte)
	SetPayload(p []byte)
}

var _ Frame = Ping{}
var _ Frame = Pong{}
var _ Frame = Ok{}
var _ Frame = (*Err)(nil)
var _ Frame = (*ServerInfo)(nil)
var _ PayloadFrame = (*Msg)(nil)
var _ PayloadFrame = (*HMsg)(nil)
