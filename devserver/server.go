package devserver

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/lantern/internal/meta"
	"github.com/luma/lantern/protocol"
)

// Server is a single node message router that speaks the client protocol. It
// is meant for local development and integration tests, there is no
// clustering, auth or persistence.
type Server struct {
	cancel     context.CancelFunc
	ctx        context.Context
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool
	listener  net.Listener

	info protocol.ServerInfo

	conns  *xsync.MapOf[uint64, *Conn]
	lastID atomic.Uint64

	metrics *Metrics

	log   *zap.Logger
	trace bool
}

func New(options Options) *Server {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	maxPayload := options.MaxPayload
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	serverID := options.ServerID
	if serverID == "" {
		serverID = "LANTERN" + strconv.FormatUint(rand.Uint64(), 36)
	}

	return &Server{
		addr:      net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport: options.Reuseport,
		info: protocol.ServerInfo{
			ServerID:    serverID,
			Version:     meta.ClientVersion(),
			GoVersion:   meta.GoVersion(),
			Host:        options.Host,
			Port:        options.Port,
			Proto:       1,
			MaxPayload:  maxPayload,
			ConnectURLs: []string{},
		},
		conns:   xsync.NewMapOf[uint64, *Conn](),
		metrics: newMetrics(),
		log:     log,
		trace:   options.Trace,
	}
}

// Start binds the listener and accepts connections in the background until
// ctx is cancelled or Close is called.
func (s *Server) Start(parentCtx context.Context) error {
	var (
		listener net.Listener
		err      error
	)

	if s.reuseport {
		listener, err = reuseport.Listen("tcp", s.addr)
	} else {
		listener, err = net.Listen("tcp", s.addr)
	}

	if err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(parentCtx)
	s.listener = listener

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.info.Port = tcpAddr.Port
	}

	s.log.Info("Listening", zap.String("addr", listener.Addr().String()))

	s.stopWaiter.Add(2)

	go func() {
		defer s.stopWaiter.Done()
		s.acceptLoop()
	}()

	go func() {
		defer s.stopWaiter.Done()

		// Unblock Accept once the parent context is gone
		<-s.ctx.Done()
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Warn("Listener did not close cleanly", zap.Error(err))
		}
	}()

	return nil
}

// Addr is the address the listener is bound to. Only valid after Start.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL is Addr as a dialable endpoint.
func (s *Server) URL() string {
	return "nats://" + s.Addr()
}

func (s *Server) Info() protocol.ServerInfo {
	return s.info
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) NumConns() int {
	return s.conns.Size()
}

// Close immediately closes the listener and all active connections, and waits
// for their loops to exit.
func (s *Server) Close() (err error) {
	if s.cancel == nil {
		return nil
	}

	s.log.Info("Stopping server")
	s.cancel()

	s.conns.Range(func(_ uint64, c *Conn) bool {
		err = multierr.Append(err, c.Close())
		return true
	})

	s.stopWaiter.Wait()
	s.log.Info("Server stopped")

	return err
}

func (s *Server) acceptLoop() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				// The listener was closed while we were waiting for new connections
				return
			}

			// TODO(rolly) back off and retry on temporary accept errors
			s.log.Error("Failed to accept", zap.Error(err))
			return
		}

		id := s.lastID.Add(1)
		c := newConn(s, id, nc)

		s.conns.Store(id, c)
		s.metrics.connections.Inc()

		if s.ctx.Err() != nil {
			// Close raced with us and may not have seen this conn
			c.Close()
		}

		s.stopWaiter.Add(1)

		go func() {
			defer s.stopWaiter.Done()
			c.Serve()

			s.conns.Delete(id)
			s.metrics.connections.Dec()
		}()
	}
}

type delivery struct {
	conn *Conn
	sub  *subscription
}

// route delivers a published message to every matching subscription. Queue
// group members get one delivery per group, picked at random. It returns the
// number of deliveries made.
func (s *Server) route(from *Conn, pub *protocol.Pub) int {
	var (
		delivered int
		groups    = map[string][]delivery{}
	)

	s.metrics.msgsIn.Inc()
	s.metrics.bytesIn.Add(float64(len(pub.Payload)))

	s.conns.Range(func(_ uint64, c *Conn) bool {
		if c == from && !c.echo() {
			return true
		}

		for _, sub := range c.matching(pub.Subject) {
			if sub.queue != "" {
				groups[sub.queue] = append(groups[sub.queue], delivery{conn: c, sub: sub})
				continue
			}

			if c.deliver(sub, pub) {
				delivered++
			}
		}

		return true
	})

	for _, members := range groups {
		d := members[rand.Intn(len(members))]
		if d.conn.deliver(d.sub, pub) {
			delivered++
		}
	}

	s.metrics.msgsOut.Add(float64(delivered))
	s.metrics.bytesOut.Add(float64(delivered * len(pub.Payload)))

	return delivered
}
