package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrEmptyFrame       = errors.New("Frame is empty")
	ErrUnknownVerb      = errors.New("Unknown verb could not be parsed")
	ErrMalformedFrame   = errors.New("Frame is malformed")
	ErrNotReceivable    = errors.New("Verb is not implemented for this receive direction")
	ErrInvalidOperation = errors.New("Invalid protocol operation")

	Terminal = []byte("\r\n")

	// errPrefix is matched on the first four bytes only, as servers follow it
	// with a quoted description.
	errPrefix = []byte("-ERR")
)

// ParseResponse classifies one line sent by a server, already stripped of its
// terminator, using the DefaultCodec. Payload blocks of MSG and HMSG are not
// part of the line and are left for the caller to read.
func ParseResponse(line []byte) (Frame, error) {
	return ParseResponseWith(DefaultCodec, line)
}

// ParseResponseWith is ParseResponse with an explicit codec for INFO bodies.
func ParseResponseWith(codec Codec, line []byte) (Frame, error) {
	switch {
	case bytes.Equal(line, []byte("PONG")):
		return Pong{}, nil

	case bytes.Equal(line, []byte("PING")):
		return Ping{}, nil

	case bytes.Equal(line, []byte("+OK")):
		return Ok{}, nil

	case IsErrorLine(line):
		return &Err{Message: errMessage(line)}, nil
	}

	verb, body, err := splitVerb(line)
	if err != nil {
		return nil, err
	}

	switch verb {
	case HMSG:
		return parseHMsg(body)

	case MSG:
		return parseMsg(body)

	case INFO:
		info, err := codec.DecodeInfo([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("Failed to parse INFO: %w", err)
		}
		return info, nil

	case CONNECT, PUB, SUB, UNSUB:
		return nil, fmt.Errorf("Failed to parse '%s': %w", verb, ErrNotReceivable)

	default:
		// The remaining verbs never carry a body.
		return nil, fmt.Errorf("Failed to parse '%s': %w", string(line), ErrMalformedFrame)
	}
}

// ParseRequest classifies one line sent by a client. PUB payloads are not
// part of the line, the returned int is their declared length.
func ParseRequest(line []byte) (Frame, int, error) {
	return ParseRequestWith(DefaultCodec, line)
}

// ParseRequestWith is ParseRequest with an explicit codec for CONNECT bodies.
func ParseRequestWith(codec Codec, line []byte) (Frame, int, error) {
	switch {
	case bytes.EqualFold(line, []byte("PING")):
		return Ping{}, 0, nil

	case bytes.EqualFold(line, []byte("PONG")):
		return Pong{}, 0, nil
	}

	verb, body, err := splitVerb(line)
	if err != nil {
		return nil, 0, err
	}

	switch verb {
	case CONNECT:
		opts, err := codec.DecodeConnect([]byte(body))
		if err != nil {
			return nil, 0, fmt.Errorf("Failed to parse CONNECT: %w", err)
		}
		return &Connect{Options: *opts}, 0, nil

	case PUB:
		return parsePub(body)

	case SUB:
		parts := SplitFields(body, 3)
		switch len(parts) {
		case 2:
			return &Sub{Subject: parts[0], SID: parts[1]}, 0, nil
		case 3:
			return &Sub{Subject: parts[0], Queue: parts[1], SID: parts[2]}, 0, nil
		}

	case UNSUB:
		parts := SplitFields(body, 2)
		switch len(parts) {
		case 1:
			return &Unsub{SID: parts[0]}, 0, nil
		case 2:
			maxMsgs, err := strconv.Atoi(parts[1])
			if err == nil && maxMsgs >= 0 {
				return &Unsub{SID: parts[0], MaxMsgs: maxMsgs}, 0, nil
			}
		}

	default:
		return nil, 0, fmt.Errorf("Failed to parse '%s': %w", verb, ErrNotReceivable)
	}

	return nil, 0, fmt.Errorf("Failed to parse '%s': %w", string(line), ErrMalformedFrame)
}

// IsErrorLine reports whether a line starts with the `-ERR` marker.
func IsErrorLine(line []byte) bool {
	return len(line) >= len(errPrefix) && bytes.Equal(line[:len(errPrefix)], errPrefix)
}

// IsBlank reports whether s is empty or only whitespace.
func IsBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

// SplitFields splits s on runs of spaces into at most limit pieces. The last
// piece holds the remainder when the limit is reached. A limit <= 0 means no
// limit.
func SplitFields(s string, limit int) []string {
	var fields []string

	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return fields
		}

		if limit > 0 && len(fields) == limit-1 {
			return append(fields, strings.TrimRight(s, " "))
		}

		idx := strings.IndexByte(s, ' ')
		if idx < 0 {
			return append(fields, s)
		}

		fields = append(fields, s[:idx])
		s = s[idx+1:]
	}
}

func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		// Remove the optional trailing \r
		return data[:len(data)-1]
	}

	return data
}

func splitVerb(line []byte) (Verb, string, error) {
	if len(line) == 0 {
		return 0, "", ErrEmptyFrame
	}

	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		return 0, "", fmt.Errorf("Failed to parse '%s': %w", string(line), ErrUnknownVerb)
	}

	verb, ok := LookupVerb(string(line[:idx]))
	if !ok {
		return 0, "", fmt.Errorf("Failed to parse '%s': %w", string(line), ErrUnknownVerb)
	}

	return verb, string(line[idx+1:]), nil
}

func parseMsg(body string) (Frame, error) {
	parts := SplitFields(body, 4)

	var msg *Msg

	switch len(parts) {
	case 3:
		msg = &Msg{Subject: parts[0], SID: parts[1]}
	case 4:
		msg = &Msg{Subject: parts[0], SID: parts[1], ReplyTo: parts[2]}
	default:
		return nil, fmt.Errorf("Failed to parse MSG '%s': %w", body, ErrMalformedFrame)
	}

	n, err := parseLength(parts[len(parts)-1])
	if err != nil {
		return nil, fmt.Errorf("Failed to parse MSG '%s': %w", body, err)
	}

	msg.Bytes = n
	return msg, nil
}

func parseHMsg(body string) (Frame, error) {
	parts := SplitFields(body, 5)

	var msg *HMsg

	switch len(parts) {
	case 4:
		msg = &HMsg{Subject: parts[0], SID: parts[1]}
	case 5:
		msg = &HMsg{Subject: parts[0], SID: parts[1], ReplyTo: parts[2]}
	default:
		return nil, fmt.Errorf("Failed to parse HMSG '%s': %w", body, ErrMalformedFrame)
	}

	headerBytes, err := parseLength(parts[len(parts)-2])
	if err != nil {
		return nil, fmt.Errorf("Failed to parse HMSG '%s': %w", body, err)
	}

	totalBytes, err := parseLength(parts[len(parts)-1])
	if err != nil {
		return nil, fmt.Errorf("Failed to parse HMSG '%s': %w", body, err)
	}

	if totalBytes < headerBytes {
		return nil, fmt.Errorf("Failed to parse HMSG '%s', total is smaller than headers: %w", body, ErrMalformedFrame)
	}

	msg.HeaderBytes = headerBytes
	msg.TotalBytes = totalBytes
	return msg, nil
}

func parsePub(body string) (Frame, int, error) {
	parts := SplitFields(body, 3)

	var pub *Pub

	switch len(parts) {
	case 2:
		pub = &Pub{Subject: parts[0]}
	case 3:
		pub = &Pub{Subject: parts[0], ReplyTo: parts[1]}
	default:
		return nil, 0, fmt.Errorf("Failed to parse PUB '%s': %w", body, ErrMalformedFrame)
	}

	n, err := parseLength(parts[len(parts)-1])
	if err != nil {
		return nil, 0, fmt.Errorf("Failed to parse PUB '%s': %w", body, err)
	}

	return pub, n, nil
}

func parseLength(token string) (int, error) {
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("'%s' is not a byte count: %w", token, ErrMalformedFrame)
	}

	return n, nil
}

func errMessage(line []byte) string {
	msg := strings.TrimSpace(string(line[len(errPrefix):]))
	return strings.Trim(msg, "'")
}
