package protocol

// Connect carries the handshake options a client sends after INFO.
type Connect struct {
	Options ConnectOptions
}

func (*Connect) GetVerb() Verb { return CONNECT }

// Pub is `PUB <subject> [reply-to] <#bytes>` followed by the payload.
type Pub struct {
	Subject string
	ReplyTo string
	Payload []byte
}

func (*Pub) GetVerb() Verb { return PUB }

// Sub is `SUB <subject> [queue group] <sid>`.
type Sub struct {
	Subject string
	Queue   string
	SID     string
}

func (*Sub) GetVerb() Verb { return SUB }

// Unsub is `UNSUB <sid> [max_msgs]`. A zero MaxMsgs unsubscribes immediately.
type Unsub struct {
	SID     string
	MaxMsgs int
}

func (*Unsub) GetVerb() Verb { return UNSUB }

var _ Frame = (*Connect)(nil)
var _ Frame = (*Pub)(nil)
var _ Frame = (*Sub)(nil)
var _ Frame = (*Unsub)(nil)
