package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/lantern/endpoint"
	"github.com/luma/lantern/internal/meta"
	"github.com/luma/lantern/protocol"
	"github.com/luma/lantern/transport"
)

var (
	ErrInvalidResponse = errors.New("Invalid response from server")
	ErrNoResponders    = fmt.Errorf("%w: no responders available for request", ErrInvalidResponse)
	ErrNoDataFrame     = errors.New("No data frame received")
	ErrNotReady        = errors.New("Connection is not ready")
	ErrInvalidOptions  = errors.New("Invalid connection options")
	ErrInvalidSubject  = errors.New("Subject must not be blank")
	ErrMaxPayload      = errors.New("Payload exceeds the server's maximum")

	ErrConnectionRefused = transport.ErrConnectionRefused
	ErrAlreadyConnected  = transport.ErrAlreadyConnected
)

// Conn is a synchronous client for one server connection. Every method blocks
// until the server has answered, and none of them may be called concurrently.
type Conn struct {
	opts Options

	transport transport.Transport
	codec     protocol.Codec

	info    *protocol.ServerInfo
	current *endpoint.Endpoint

	connected bool

	subs map[string]*Subscription

	// pending holds messages that arrived while waiting for something else.
	pending []protocol.Message

	log *zap.Logger
}

func New(options Options) (*Conn, error) {
	if options.Endpoints == nil || options.Endpoints.Len() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, endpoint.ErrNoEndpoints)
	}

	if options.NoResponders && !options.Headers {
		return nil, fmt.Errorf("%w: no responders requires headers", ErrInvalidOptions)
	}

	options = options.withDefaults()

	return &Conn{
		opts:      options,
		transport: options.Transport,
		codec:     options.Codec,
		subs:      make(map[string]*Subscription),
		log:       options.Log.Named("conn"),
	}, nil
}

// Connect tries every endpoint in order, then runs the handshake on the
// first one that accepts the connection.
func (c *Conn) Connect(ctx context.Context) error {
	if c.transport.IsConnected() {
		if c.opts.IgnoreAlreadyConnected {
			return nil
		}
		return ErrAlreadyConnected
	}

	var (
		errs    error
		current *endpoint.Endpoint
	)

	for _, ep := range c.opts.Endpoints.Endpoints() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.transport.Connect(ctx, ep.Address(), c.opts.Timeout); err != nil {
			c.log.Warn("Failed to connect", zap.Stringer("endpoint", ep), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ep, err))
			continue
		}

		ep := ep
		current = &ep
		break
	}

	if current == nil {
		return fmt.Errorf("Could not connect to servers (%v): %w", errs, ErrConnectionRefused)
	}

	c.current = current
	c.log.Debug("Connected", zap.Stringer("endpoint", current))

	if err := c.handshake(*current); err != nil {
		c.log.Warn("Handshake failed", zap.Stringer("endpoint", current), zap.Error(err))

		if cerr := c.transport.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		c.reset()

		return err
	}

	c.connected = true
	c.log.Info("Connection ready",
		zap.Stringer("endpoint", current),
		zap.String("serverID", c.info.ServerID))

	return nil
}

// IsConnected is true once the handshake has completed and until Close.
func (c *Conn) IsConnected() bool {
	return c.connected && c.transport.IsConnected()
}

// ServerInfo returns the capabilities negotiated in the handshake.
func (c *Conn) ServerInfo() *protocol.ServerInfo {
	return c.info
}

// CurrentEndpoint returns the endpoint the connection was made to.
func (c *Conn) CurrentEndpoint() (endpoint.Endpoint, bool) {
	if c.current == nil {
		return endpoint.Endpoint{}, false
	}
	return *c.current, true
}

// Close releases the transport. A new Connect is needed before any further
// operation.
func (c *Conn) Close() error {
	err := c.transport.Close()
	c.reset()
	return err
}

// Publish sends payload to subject. A non-empty replyTo is passed on to
// subscribers as the subject to answer on.
func (c *Conn) Publish(subject string, payload []byte, replyTo string) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	if protocol.IsBlank(subject) {
		return ErrInvalidSubject
	}

	if limit := c.info.MaxPayload; limit > 0 && int64(len(payload)) > limit {
		return fmt.Errorf("%d bytes > %d: %w", len(payload), limit, ErrMaxPayload)
	}

	return c.command(&protocol.Pub{Subject: subject, ReplyTo: replyTo, Payload: payload})
}

// Subscribe registers interest in subject, optionally as a member of a queue
// group.
func (c *Conn) Subscribe(subject, queue string) (*Subscription, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	if protocol.IsBlank(subject) {
		return nil, ErrInvalidSubject
	}

	sub := &Subscription{Subject: subject, Queue: queue, SID: NewSID()}

	if err := c.command(&protocol.Sub{Subject: subject, Queue: queue, SID: sub.SID}); err != nil {
		return nil, err
	}

	c.subs[sub.SID] = sub

	return sub, nil
}

func (c *Conn) Unsubscribe(sid string) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	if err := c.command(&protocol.Unsub{SID: sid}); err != nil {
		return err
	}

	delete(c.subs, sid)

	return nil
}

// Subscriptions returns the live subscriptions.
func (c *Conn) Subscriptions() []*Subscription {
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Request publishes payload with a reply subject and blocks until exactly one
// reply has arrived on it. A replyTo of "" uses a fresh inbox.
func (c *Conn) Request(subject string, payload []byte, replyTo string) (protocol.Message, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	if replyTo == "" {
		replyTo = NewInbox()
	}

	sub, err := c.Subscribe(replyTo, "")
	if err != nil {
		return nil, err
	}

	var reply protocol.Message

	err = c.Publish(subject, payload, replyTo)
	if err == nil {
		reply, err = c.waitForReply(sub.SID)
	}

	if uerr := c.Unsubscribe(sub.SID); uerr != nil {
		err = multierr.Append(err, uerr)
	}

	if err != nil {
		return nil, err
	}

	if hmsg, ok := reply.(*protocol.HMsg); ok && hmsg.IsNoResponders() {
		return nil, fmt.Errorf("request to '%s': %w", subject, ErrNoResponders)
	}

	return reply, nil
}

// Ping makes a round trip to the server.
func (c *Conn) Ping() error {
	if err := c.checkReady(); err != nil {
		return err
	}

	if err := c.write(protocol.Ping{}); err != nil {
		return err
	}

	return c.waitFor(protocol.PONG)
}

// NextMsg blocks until a message for any subscription arrives. Messages that
// were received while another call was waiting are returned first.
func (c *Conn) NextMsg() (protocol.Message, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	if msg, ok := c.popPending(); ok {
		return msg, nil
	}

	for i := 0; i < c.opts.MaxControlFrames; i++ {
		frame, err := c.nextFrame()
		if err != nil {
			return nil, err
		}

		if msg, ok := frame.(protocol.Message); ok {
			return msg, nil
		}

		c.log.Debug("Skipping unsolicited frame", zap.Stringer("verb", frame.GetVerb()))
	}

	return nil, ErrNoDataFrame
}

// NextFrame returns whatever the receive loop yields next: a queued message,
// or the next frame that isn't a PING.
func (c *Conn) NextFrame() (protocol.Frame, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	if msg, ok := c.popPending(); ok {
		return msg, nil
	}

	return c.nextFrame()
}

func (c *Conn) handshake(ep endpoint.Endpoint) error {
	frame, err := c.readFrame()
	if err != nil {
		return err
	}

	info, ok := frame.(*protocol.ServerInfo)
	if !ok {
		return fmt.Errorf("Server information is not correct, got %s: %w", frame.GetVerb(), ErrInvalidResponse)
	}

	c.info = info

	useTLS := info.TLSRequired || ep.IsTLS()
	if useTLS {
		if err := c.transport.EnableTLS(c.tlsConfig(ep)); err != nil {
			return err
		}
	}

	connect := &protocol.Connect{Options: c.connectOptions(ep, useTLS)}
	if err := c.write(connect); err != nil {
		return err
	}

	if c.opts.Verbose {
		if err := c.expect(protocol.OK); err != nil {
			return err
		}
	}

	if err := c.write(protocol.Ping{}); err != nil {
		return err
	}

	return c.expect(protocol.PONG)
}

func (c *Conn) connectOptions(ep endpoint.Endpoint, useTLS bool) protocol.ConnectOptions {
	opts := protocol.ConnectOptions{
		Verbose:      c.opts.Verbose,
		Pedantic:     c.opts.Pedantic,
		TLSRequired:  useTLS,
		AuthToken:    c.opts.AuthToken,
		Name:         c.opts.Name,
		Lang:         protocol.ClientLang,
		Version:      meta.ClientVersion(),
		Protocol:     c.opts.Protocol,
		Echo:         c.opts.Echo,
		NoResponders: c.opts.NoResponders,
		Headers:      c.opts.Headers,
	}

	if ep.HasCredentials() {
		opts.User = ep.User
		opts.Pass = ep.Password
	}

	return opts
}

func (c *Conn) tlsConfig(ep endpoint.Endpoint) *tls.Config {
	var config *tls.Config
	if c.opts.TLSConfig != nil {
		config = c.opts.TLSConfig.Clone()
	} else {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if config.ServerName == "" {
		config.ServerName = ep.Host
	}

	return config
}

// expect reads the very next frame and fails unless it is a want. It is used
// during the handshake, where nothing else is allowed.
func (c *Conn) expect(want protocol.Verb) error {
	frame, err := c.readFrame()
	if err != nil {
		return err
	}

	if frame.GetVerb() != want {
		return fmt.Errorf("Expected %s, got %s: %w", want, frame.GetVerb(), ErrInvalidResponse)
	}

	return nil
}

// command writes a client frame and, in verbose mode, waits for its +OK.
func (c *Conn) command(f protocol.Frame) error {
	if err := c.write(f); err != nil {
		return err
	}

	if !c.opts.Verbose {
		return nil
	}

	return c.waitFor(protocol.OK)
}

// waitFor reads frames until want arrives, queueing any messages on the way.
func (c *Conn) waitFor(want protocol.Verb) error {
	for {
		frame, err := c.nextFrame()
		if err != nil {
			return err
		}

		if msg, ok := frame.(protocol.Message); ok {
			c.pending = append(c.pending, msg)
			continue
		}

		if frame.GetVerb() != want {
			return fmt.Errorf("Expected %s, got %s: %w", want, frame.GetVerb(), ErrInvalidResponse)
		}

		return nil
	}
}

// waitForReply reads frames until a message for sid arrives. Messages for
// other subscriptions are queued.
func (c *Conn) waitForReply(sid string) (protocol.Message, error) {
	for i, msg := range c.pending {
		if msg.GetSID() == sid {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return msg, nil
		}
	}

	skipped := 0

	for skipped < c.opts.MaxControlFrames {
		frame, err := c.nextFrame()
		if err != nil {
			return nil, err
		}

		msg, ok := frame.(protocol.Message)
		if !ok {
			c.log.Debug("Skipping unsolicited frame", zap.Stringer("verb", frame.GetVerb()))
			skipped++
			continue
		}

		if msg.GetSID() == sid {
			return msg, nil
		}

		c.pending = append(c.pending, msg)
	}

	return nil, ErrNoDataFrame
}

// nextFrame is the receive loop. PINGs are answered in place, and at most
// MaxControlFrames of them are answered before giving up.
func (c *Conn) nextFrame() (protocol.Frame, error) {
	for i := 0; i < c.opts.MaxControlFrames; i++ {
		frame, err := c.readFrame()
		if err != nil {
			return nil, err
		}

		if _, ok := frame.(protocol.Ping); ok {
			if err := c.write(protocol.Pong{}); err != nil {
				return nil, err
			}
			continue
		}

		return frame, nil
	}

	return nil, fmt.Errorf("%d PINGs in a row: %w", c.opts.MaxControlFrames, ErrNoDataFrame)
}

// readFrame reads one line, classifies it, and reads the payload block of
// MSG and HMSG frames.
func (c *Conn) readFrame() (protocol.Frame, error) {
	line, err := c.transport.ReadLine()
	if err != nil {
		return nil, readError(err)
	}

	if protocol.IsBlank(string(line)) {
		return nil, fmt.Errorf("Got an empty response, try using tls instead: %w", ErrInvalidResponse)
	}

	if protocol.IsErrorLine(line) {
		return nil, fmt.Errorf("Received an error response '%s': %w", string(line), ErrInvalidResponse)
	}

	frame, err := protocol.ParseResponseWith(c.codec, line)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	if pf, ok := frame.(protocol.PayloadFrame); ok {
		if err := c.readPayload(pf); err != nil {
			return nil, err
		}
	}

	return frame, nil
}

func (c *Conn) readPayload(f protocol.PayloadFrame) error {
	if c.info != nil && c.info.MaxPayload > 0 {
		if size := int64(f.HeaderLength()) + int64(f.PayloadLength()); size > c.info.MaxPayload {
			return fmt.Errorf("%s declares %d bytes, the server maximum is %d: %w",
				f.GetSubject(), size, c.info.MaxPayload, ErrInvalidResponse)
		}
	}

	if _, ok := f.(*protocol.HMsg); ok {
		headers, err := c.transport.ReadExact(f.HeaderLength())
		if err != nil {
			return readError(err)
		}
		f.SetHeaders(headers)
	}

	payload, err := c.transport.ReadExact(f.PayloadLength())
	if err != nil {
		return readError(err)
	}
	f.SetPayload(payload)

	terminal, err := c.transport.ReadExact(len(protocol.Terminal))
	if err != nil {
		return readError(err)
	}

	if !bytes.Equal(terminal, protocol.Terminal) {
		return fmt.Errorf("Payload of %s is not terminated: %w", f.GetSubject(), ErrInvalidResponse)
	}

	return nil
}

// readError maps a stream that ended, cleanly or mid-frame, to
// ErrInvalidResponse.
func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("Did not get any response, connection is not valid: %w", ErrInvalidResponse)
	}

	return err
}

func (c *Conn) write(f protocol.Frame) error {
	b, err := protocol.EncodeFrame(c.codec, f)
	if err != nil {
		return err
	}

	return c.transport.Write(b)
}

func (c *Conn) checkReady() error {
	if !c.IsConnected() {
		return ErrNotReady
	}
	return nil
}

func (c *Conn) popPending() (protocol.Message, bool) {
	if len(c.pending) == 0 {
		return nil, false
	}

	msg := c.pending[0]
	c.pending = c.pending[1:]

	return msg, true
}

func (c *Conn) reset() {
	c.connected = false
	c.subs = make(map[string]*Subscription)
	c.pending = nil
}
