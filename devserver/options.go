package devserver

import (
	"go.uber.org/zap"
)

const (
	DefaultMaxPayload = 1024 * 1024

	// WriteQueueSize is how many frames may wait for a slow client before
	// deliveries to it block.
	WriteQueueSize = 127
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. Zero picks a free port, see Server.Addr.
	Port int

	// Reuseport controls setting SO_REUSEPORT
	Reuseport bool

	// ServerID is advertised in INFO. A random one is used when empty.
	ServerID string

	// MaxPayload is advertised in INFO and enforced on PUB.
	MaxPayload int64

	// Trace will log every frame read. This is only useful in local debugging
	Trace bool

	Log *zap.Logger
}
