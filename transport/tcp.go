package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/luma/lantern/protocol"
)

var (
	ErrConnectionRefused = errors.New("Connection refused")
	ErrAlreadyConnected  = errors.New("Transport is already connected")
	ErrNotConnected      = errors.New("Transport is not connected, try reconnecting")
	ErrStreamWrite       = errors.New("Error sending data")
	ErrTimeout           = errors.New("Timed out waiting for the server")
	ErrLineTooLong       = errors.New("Line exceeds the maximum length")
	ErrReadSize          = errors.New("Invalid read size")
)

// Transport is a blocking byte stream to one server. None of its methods may
// be called concurrently.
type Transport interface {
	// Connect opens the stream to addr (host:port).
	Connect(ctx context.Context, addr string, timeout time.Duration) error

	// EnableTLS upgrades the open stream in place.
	EnableTLS(config *tls.Config) error

	// Write writes all of data or fails.
	Write(data []byte) error

	// ReadLine returns the next `\r\n` terminated line without its terminator.
	// It returns io.EOF once the stream has ended.
	ReadLine() ([]byte, error)

	// ReadExact blocks until exactly n bytes have been read.
	ReadExact(n int) ([]byte, error)

	Close() error
	IsConnected() bool
}

// TCP is the Transport used against real servers.
type TCP struct {
	conn   net.Conn
	reader *bufio.Reader

	readTimeout   time.Duration
	chunkSize     int
	maxLineLength int
	maxReadSize   int

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	chunkSize := options.ChunkSize
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}

	maxLineLength := options.MaxLineLength
	if maxLineLength < 1 {
		maxLineLength = DefaultMaxLineLength
	}

	maxReadSize := options.MaxReadSize
	if maxReadSize < 1 {
		maxReadSize = DefaultMaxReadSize
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		readTimeout:   options.ReadTimeout,
		chunkSize:     chunkSize,
		maxLineLength: maxLineLength,
		maxReadSize:   maxReadSize,
		log:           log,
		trace:         options.Trace,
	}
}

func (t *TCP) Connect(ctx context.Context, addr string, timeout time.Duration) error {
	if t.conn != nil {
		return ErrAlreadyConnected
	}

	dialer := net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("Could not connect to %s with a timeout of %s: %v: %w",
			addr, timeout, err, ErrConnectionRefused)
	}

	t.setConn(conn)

	return nil
}

func (t *TCP) EnableTLS(config *tls.Config) error {
	if t.conn == nil {
		return ErrNotConnected
	}

	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	tlsConn := tls.Client(t.conn, config)

	if t.readTimeout > 0 {
		if err := tlsConn.SetDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return fmt.Errorf("Failed to connect: %v: %w", err, ErrConnectionRefused)
		}
	}

	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("Failed to connect, error negotiating crypto: %v: %w", err, ErrConnectionRefused)
	}

	if err := tlsConn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("Failed to connect: %v: %w", err, ErrConnectionRefused)
	}

	t.setConn(tlsConn)

	return nil
}

func (t *TCP) Write(data []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}

	if t.trace {
		t.log.Debug("write", zap.ByteString("data", data))
	}

	for len(data) > 0 {
		chunk := data
		if len(chunk) > t.chunkSize {
			chunk = chunk[:t.chunkSize]
		}

		written, err := t.conn.Write(chunk)
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrStreamWrite)
		}

		if written == 0 {
			return fmt.Errorf("Broken pipe or closed connection: %w", ErrStreamWrite)
		}

		data = data[written:]
	}

	return nil
}

func (t *TCP) ReadLine() ([]byte, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	if err := t.setReadDeadline(); err != nil {
		return nil, err
	}

	line, err := t.readLine()
	if err != nil {
		return nil, err
	}

	line = protocol.RemoveTrailingCR(line[:len(line)-1])

	if t.trace {
		t.log.Debug("read", zap.ByteString("line", line))
	}

	return line, nil
}

func (t *TCP) ReadExact(n int) ([]byte, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	if n < 0 || n > t.maxReadSize {
		return nil, fmt.Errorf("Cannot read %d bytes, the limit is %d: %w", n, t.maxReadSize, ErrReadSize)
	}

	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}

	if err := t.setReadDeadline(); err != nil {
		return nil, err
	}

	// io.ReadFull keeps reading until it has accumulated all n bytes.
	if _, err := io.ReadFull(t.reader, buf); err != nil {
		return nil, t.readError(err)
	}

	return buf, nil
}

// readLine reads up to and including the next '\n', failing once the line
// grows past maxLineLength.
func (t *TCP) readLine() ([]byte, error) {
	var line []byte

	for {
		chunk, err := t.reader.ReadSlice('\n')
		line = append(line, chunk...)

		if len(line) > t.maxLineLength {
			return nil, fmt.Errorf("Read %d bytes without a line end: %w", len(line), ErrLineTooLong)
		}

		switch {
		case err == nil:
			return line, nil

		case errors.Is(err, bufio.ErrBufferFull):
			continue

		case errors.Is(err, io.EOF) && len(line) > 0:
			return nil, io.ErrUnexpectedEOF

		default:
			return nil, t.readError(err)
		}
	}
}

func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.reader = nil

	return err
}

func (t *TCP) IsConnected() bool {
	return t.conn != nil
}

func (t *TCP) setConn(conn net.Conn) {
	t.conn = conn
	t.reader = bufio.NewReader(conn)
}

func (t *TCP) setReadDeadline() error {
	if t.readTimeout <= 0 {
		return nil
	}

	return t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
}

func (t *TCP) readError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("No data within %s: %w", t.readTimeout, ErrTimeout)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("No data within %s: %w", t.readTimeout, ErrTimeout)
	}

	return err
}

var _ Transport = (*TCP)(nil)
