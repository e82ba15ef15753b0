package protocol

import "strings"

// Verb is the leading token of a protocol line.
type Verb int

const (
	INFO Verb = iota + 1
	CONNECT
	PUB
	SUB
	UNSUB
	MSG
	HMSG
	PING
	PONG
	OK
	ERR
)

var verbNames = map[Verb]string{
	INFO:    "INFO",
	CONNECT: "CONNECT",
	PUB:     "PUB",
	SUB:     "SUB",
	UNSUB:   "UNSUB",
	MSG:     "MSG",
	HMSG:    "HMSG",
	PING:    "PING",
	PONG:    "PONG",
	OK:      "+OK",
	ERR:     "-ERR",
}

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}

	return "UNKNOWN"
}

// Valid reports whether v is one of the protocol verbs.
func (v Verb) Valid() bool {
	_, ok := verbNames[v]
	return ok
}

// LookupVerb maps a verb token to a Verb. Matching is case-insensitive, the
// wire form is always uppercase.
func LookupVerb(token string) (Verb, bool) {
	token = strings.ToUpper(token)

	for verb, name := range verbNames {
		if name == token {
			return verb, true
		}
	}

	return 0, false
}
