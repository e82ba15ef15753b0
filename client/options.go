package client

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"

	"github.com/luma/lantern/endpoint"
	"github.com/luma/lantern/protocol"
	"github.com/luma/lantern/transport"
)

const (
	DefaultTimeout          = 5 * time.Second
	DefaultMaxControlFrames = 64
)

// Options configure a Conn. They are copied by New and can't be changed
// afterwards.
type Options struct {
	// Endpoints are tried in order until one accepts the connection.
	Endpoints *endpoint.Directory

	// Name is sent to the server to identify the client.
	Name string

	// Verbose asks the server to acknowledge every command with +OK, and makes
	// every command wait for that acknowledgement.
	Verbose bool

	Pedantic bool
	Echo     bool

	// Headers announces support for HMSG. NoResponders requires it.
	Headers      bool
	NoResponders bool

	AuthToken string
	Protocol  int

	// Timeout bounds each connection attempt.
	Timeout time.Duration

	// ReadTimeout bounds every read of the default transport. Zero blocks
	// forever.
	ReadTimeout time.Duration

	// TLSConfig is used when the server or the endpoint requires TLS. Its
	// ServerName defaults to the endpoint host.
	TLSConfig *tls.Config

	// IgnoreAlreadyConnected makes Connect a no-op on an open transport rather
	// than an error.
	IgnoreAlreadyConnected bool

	// MaxControlFrames caps how many PINGs in a row the receive loop answers
	// before giving up on getting a frame the caller asked for.
	MaxControlFrames int

	Transport transport.Transport
	Codec     protocol.Codec
	Log       *zap.Logger
}

// DefaultOptions returns the defaults. Verbose mode is off: commands do not
// wait for +OK unless asked to.
func DefaultOptions() Options {
	return Options{
		Verbose:          false,
		Pedantic:         true,
		Timeout:          DefaultTimeout,
		MaxControlFrames: DefaultMaxControlFrames,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.MaxControlFrames < 1 {
		o.MaxControlFrames = DefaultMaxControlFrames
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	if o.Codec == nil {
		o.Codec = protocol.DefaultCodec
	}

	if o.Transport == nil {
		o.Transport = transport.NewTCP(transport.Options{
			ReadTimeout: o.ReadTimeout,
			Log:         o.Log.Named("transport"),
		})
	}

	return o
}
