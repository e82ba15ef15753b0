package transport

import (
	"time"

	"go.uber.org/zap"
)

// DefaultChunkSize bounds how many bytes a single socket write is handed.
const DefaultChunkSize = 1024

const (
	// DefaultMaxLineLength bounds a single protocol line, INFO included.
	DefaultMaxLineLength = 64 * 1024

	// DefaultMaxReadSize bounds a single ReadExact call.
	DefaultMaxReadSize = 64 * 1024 * 1024
)

type Options struct {
	// ReadTimeout bounds every blocking read. Zero blocks forever.
	ReadTimeout time.Duration

	// ChunkSize is the most bytes passed to one socket write. Larger frames are
	// written in several calls.
	ChunkSize int

	// MaxLineLength is the longest line ReadLine accepts, terminator included.
	MaxLineLength int

	// MaxReadSize is the most bytes ReadExact will allocate for one block.
	MaxReadSize int

	// Trace will log every line read and every write at debug level. This is
	// only useful in local debugging
	Trace bool

	Log *zap.Logger
}
