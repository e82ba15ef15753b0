package devserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/lantern/protocol"
)

// Messages sent back in -ERR frames
const (
	errUnknownOperation = "Unknown Protocol Operation"
	errMaxPayload       = "Maximum Payload Violation"
	errInvalidSubject   = "Invalid Subject"
	errUnknownSID       = "Unknown Subscription"
)

const drainTimeout = time.Second

type subscription struct {
	subject string
	queue   string
	sid     string

	// max is the auto-unsubscribe limit, zero for none
	max       int
	delivered int
}

// Conn is the server side of one client connection. Frames from the client are
// handled on the read loop, everything sent to the client goes through the
// write queue.
type Conn struct {
	id     uint64
	server *Server

	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	conn   net.Conn
	reader *bufio.Reader

	writeQueue chan []byte

	mu      sync.Mutex
	options protocol.ConnectOptions
	subs    map[string]*subscription

	log *zap.Logger
}

func newConn(server *Server, id uint64, nc net.Conn) *Conn {
	ctx, cancel := context.WithCancel(server.ctx)

	return &Conn{
		id:         id,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
		conn:       nc,
		reader:     bufio.NewReader(nc),
		writeQueue: make(chan []byte, WriteQueueSize),
		subs:       make(map[string]*subscription),
		log: server.log.Named("conn").With(
			zap.Uint64("cid", id),
			zap.String("remote", nc.RemoteAddr().String())),
	}
}

// Serve sends INFO and runs the read and write loops until either side hangs
// up. It blocks until both loops have exited.
func (c *Conn) Serve() {
	c.loopWaiter.Add(1)

	go func() {
		defer c.loopWaiter.Done()
		c.WriteLoop()
	}()

	info := c.server.Info()
	c.send(&info)

	c.ReadLoop()

	c.cancel()
	c.loopWaiter.Wait()
}

// Close stops both loops. It does not wait for them, use Serve's return for
// that.
func (c *Conn) Close() error {
	c.cancel()

	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

func (c *Conn) ReadLoop() {
	log := c.log.Named("readLoop")

	defer log.Debug("Read loop exited")

	for c.isRunning() {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("Failed to read client frame", zap.Error(err))
			}
			return
		}

		line = protocol.RemoveTrailingCR(bytes.TrimSuffix(line, []byte("\n")))

		if c.server.trace {
			log.Debug("<<-", zap.ByteString("line", line))
		}

		if len(line) == 0 {
			continue
		}

		f, n, err := protocol.ParseRequest(line)
		if err != nil {
			log.Warn("Failed to parse client frame", zap.ByteString("line", line), zap.Error(err))
			c.sendErr(errUnknownOperation)
			return
		}

		if !c.handle(f, n) {
			return
		}
	}
}

func (c *Conn) WriteLoop() {
	log := c.log.Named("writeLoop")

	defer func() {
		// Unblocks the read loop if it is still waiting on the client
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("Failed to close connection cleanly", zap.Error(err))
		}

		log.Debug("Write loop exited")
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return

		case data := <-c.writeQueue:
			if _, err := c.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue", zap.Error(err))
				return
			}
		}
	}
}

// drain writes whatever is still queued, so a final -ERR reaches the client
// before the connection closes.
func (c *Conn) drain() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(drainTimeout))

	for {
		select {
		case data := <-c.writeQueue:
			if _, err := c.conn.Write(data); err != nil {
				return
			}

		default:
			return
		}
	}
}

// handle dispatches one parsed client frame. It returns false when the
// connection should be dropped.
func (c *Conn) handle(f protocol.Frame, n int) bool {
	switch req := f.(type) {
	case protocol.Ping:
		c.send(protocol.Pong{})

	case protocol.Pong:

	case *protocol.Connect:
		c.mu.Lock()
		c.options = req.Options
		c.mu.Unlock()

		c.log.Info("Client connected",
			zap.String("name", req.Options.Name),
			zap.String("lang", req.Options.Lang),
			zap.String("version", req.Options.Version))

		c.ok()

	case *protocol.Sub:
		if !ValidSubject(req.Subject, true) {
			c.sendErr(errInvalidSubject)
			return true
		}

		c.mu.Lock()
		c.subs[req.SID] = &subscription{subject: req.Subject, queue: req.Queue, sid: req.SID}
		c.mu.Unlock()

		c.ok()

	case *protocol.Unsub:
		c.mu.Lock()
		sub, found := c.subs[req.SID]
		switch {
		case !found:
		case req.MaxMsgs == 0 || sub.delivered >= req.MaxMsgs:
			delete(c.subs, req.SID)
		default:
			sub.max = req.MaxMsgs
		}
		c.mu.Unlock()

		if !found {
			c.sendErr(errUnknownSID)
			return true
		}

		c.ok()

	case *protocol.Pub:
		return c.publish(req, n)
	}

	return true
}

func (c *Conn) publish(pub *protocol.Pub, n int) bool {
	if int64(n) > c.server.info.MaxPayload {
		c.sendErr(errMaxPayload)
		return false
	}

	block := make([]byte, n+len(protocol.Terminal))
	if _, err := io.ReadFull(c.reader, block); err != nil {
		c.log.Warn("Failed to read payload", zap.Error(err))
		return false
	}

	if !bytes.Equal(block[n:], protocol.Terminal) {
		c.sendErr(errUnknownOperation)
		return false
	}

	if !ValidSubject(pub.Subject, false) {
		c.sendErr(errInvalidSubject)
		return true
	}

	pub.Payload = block[:n]

	if c.server.route(c, pub) == 0 && pub.ReplyTo != "" {
		c.replyNoResponders(pub.ReplyTo)
	}

	c.ok()
	return true
}

// replyNoResponders answers a request nobody is listening for with a 503
// status, when the client asked for it in CONNECT.
func (c *Conn) replyNoResponders(replyTo string) {
	c.mu.Lock()
	opts := c.options
	c.mu.Unlock()

	if !opts.Headers || !opts.NoResponders {
		return
	}

	for _, sub := range c.matching(replyTo) {
		c.server.metrics.noResponses.Inc()
		c.send(&protocol.HMsg{
			Subject:    replyTo,
			SID:        sub.sid,
			RawHeaders: protocol.StatusHeaders(protocol.StatusNoResponders),
		})
		return
	}
}

// matching returns the subscriptions whose subject covers subject.
func (c *Conn) matching(subject string) []*subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	var subs []*subscription
	for _, sub := range c.subs {
		if SubjectMatches(sub.subject, subject) {
			subs = append(subs, sub)
		}
	}

	return subs
}

// deliver sends pub to one subscription, honouring its auto-unsubscribe
// limit. It returns false if the subscription is already gone.
func (c *Conn) deliver(sub *subscription, pub *protocol.Pub) bool {
	c.mu.Lock()
	if _, ok := c.subs[sub.sid]; !ok {
		c.mu.Unlock()
		return false
	}

	sub.delivered++
	if sub.max > 0 && sub.delivered >= sub.max {
		delete(c.subs, sub.sid)
	}
	c.mu.Unlock()

	c.send(&protocol.Msg{
		Subject: pub.Subject,
		SID:     sub.sid,
		ReplyTo: pub.ReplyTo,
		Payload: pub.Payload,
	})

	return true
}

func (c *Conn) echo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.options.Echo
}

func (c *Conn) ok() {
	c.mu.Lock()
	verbose := c.options.Verbose
	c.mu.Unlock()

	if verbose {
		c.send(protocol.Ok{})
	}
}

func (c *Conn) sendErr(msg string) {
	c.send(&protocol.Err{Message: msg})
}

// send queues a frame for the write loop. Frames sent after the connection
// stopped are dropped.
func (c *Conn) send(f protocol.Frame) {
	data, err := protocol.EncodeFrame(protocol.DefaultCodec, f)
	if err != nil {
		c.log.Error("Failed to encode frame", zap.Stringer("verb", f.GetVerb()), zap.Error(err))
		return
	}

	select {
	case c.writeQueue <- data:
	case <-c.ctx.Done():
	}
}

// isRunning returns true if Close has not been called
func (c *Conn) isRunning() bool {
	select {
	case <-c.ctx.Done():
		return false

	default:
		return true
	}
}
