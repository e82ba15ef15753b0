package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// WriteFrame encodes a frame with the DefaultCodec and writes it with a single
// call to w.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := EncodeFrame(DefaultCodec, f)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

// EncodeFrame serialises a frame into its wire form, terminator included.
// Payload blocks are appended after the protocol line along with their own
// terminator.
func EncodeFrame(codec Codec, f Frame) ([]byte, error) {
	var buf bytes.Buffer

	switch c := f.(type) {
	case Ping, *Ping:
		buf.WriteString("PING")

	case Pong, *Pong:
		buf.WriteString("PONG")

	case Ok, *Ok:
		buf.WriteString("+OK")

	case *Err:
		fmt.Fprintf(&buf, "-ERR '%s'", c.Message)

	case *Connect:
		body, err := codec.EncodeConnect(&c.Options)
		if err != nil {
			return nil, err
		}
		writeLine(&buf, "CONNECT", string(body))

	case *ServerInfo:
		body, err := codec.EncodeInfo(c)
		if err != nil {
			return nil, err
		}
		writeLine(&buf, "INFO", string(body))

	case *Pub:
		writeLine(&buf, "PUB", c.Subject, c.ReplyTo, strconv.Itoa(len(c.Payload)))
		buf.Write(Terminal)
		buf.Write(c.Payload)

	case *Sub:
		writeLine(&buf, "SUB", c.Subject, c.Queue, c.SID)

	case *Unsub:
		if c.MaxMsgs > 0 {
			writeLine(&buf, "UNSUB", c.SID, strconv.Itoa(c.MaxMsgs))
		} else {
			writeLine(&buf, "UNSUB", c.SID)
		}

	case *Msg:
		writeLine(&buf, "MSG", c.Subject, c.SID, c.ReplyTo, strconv.Itoa(len(c.Payload)))
		buf.Write(Terminal)
		buf.Write(c.Payload)

	case *HMsg:
		headers := c.RawHeaders
		writeLine(&buf, "HMSG", c.Subject, c.SID, c.ReplyTo,
			strconv.Itoa(len(headers)), strconv.Itoa(len(headers)+len(c.Payload)))
		buf.Write(Terminal)
		buf.Write(headers)
		buf.Write(c.Payload)

	default:
		return nil, fmt.Errorf("Failed to encode %T: %w", f, ErrInvalidOperation)
	}

	buf.Write(Terminal)
	return buf.Bytes(), nil
}

// StatusHeaders builds a header block holding only an inline status.
func StatusHeaders(status int) []byte {
	return []byte(fmt.Sprintf("NATS/1.0 %d\r\n\r\n", status))
}

// writeLine joins the verb and non-empty args with single spaces.
func writeLine(buf *bytes.Buffer, verb string, args ...string) {
	buf.WriteString(verb)

	for _, arg := range args {
		if arg == "" {
			continue
		}

		buf.WriteByte(' ')
		buf.WriteString(arg)
	}
}
