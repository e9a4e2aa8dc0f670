package wamp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/transport"
	nxwamp "github.com/gammazero/nexus/v3/wamp"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultRequestTimeout   = 5 * time.Second
	defaultKeepAlive        = 2 * time.Second
	defaultEventBuffer      = 64
)

// Config describes the router endpoint to join
type Config struct {
	URL   string
	Realm string
	// HandshakeTimeout bounds the WebSocket dial and the HELLO/WELCOME exchange
	HandshakeTimeout time.Duration
	// RequestTimeout bounds each REGISTER/SUBSCRIBE round trip
	RequestTimeout time.Duration
	// KeepAlive is the ping interval; a router that misses two pongs is dropped
	KeepAlive time.Duration
	// EventBuffer is the capacity of the Events channel
	EventBuffer int
}

// InvocationHandler serves calls to a registered procedure
type InvocationHandler func(ctx context.Context, inv *Invocation) InvokeResult

// Client is one joined WAMP session. It is created by Dial and is unusable
// once Done is closed.
type Client struct {
	peer   *client.Client
	logger customlog.Logger

	events  chan *Event
	nextSub atomic.Uint64
	closing atomic.Bool

	done  chan struct{}
	errMu sync.Mutex
	err   error
}

// Dial connects to the router and joins cfg.Realm
func Dial(ctx context.Context, cfg Config, logger customlog.Logger) (*Client, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	peer, err := client.ConnectNet(dialCtx, cfg.URL, client.Config{
		Realm:           cfg.Realm,
		ResponseTimeout: cfg.RequestTimeout,
		Serialization:   client.JSON,
		Logger:          peerLogger{logger},
		WsCfg: transport.WebsocketConfig{
			KeepAlive: cfg.KeepAlive,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join realm '%s' on %s: %w", cfg.Realm, cfg.URL, err)
	}

	c := &Client{
		peer:   peer,
		logger: logger,
		events: make(chan *Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	go c.watch()

	logger.Infof("Joined realm '%s' on %s (session %d)", cfg.Realm, cfg.URL, peer.ID())
	return c, nil
}

// SessionID returns the id assigned by the router in WELCOME
func (c *Client) SessionID() ID {
	return c.peer.ID()
}

// Events delivers publications for all subscriptions of this session
func (c *Client) Events() <-chan *Event {
	return c.events
}

// Done is closed when the session ends for any reason
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the session ended, or nil while it is alive
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Register exposes handler as procedure on the router
func (c *Client) Register(ctx context.Context, procedure string, options Dict, handler InvocationHandler) error {
	if options == nil {
		options = Dict{}
	}
	err := c.await(ctx, func() error {
		return c.peer.Register(procedure, func(ctx context.Context, inv *nxwamp.Invocation) client.InvokeResult {
			return handler(ctx, invocationFromPeer(inv)).toPeer()
		}, options)
	})
	if err != nil {
		return fmt.Errorf("failed to register '%s': %w", procedure, err)
	}

	c.logger.Debugf("Registered procedure '%s'", procedure)
	return nil
}

// Subscribe subscribes to topic. Matching publications arrive on Events
// carrying the returned handle.
func (c *Client) Subscribe(ctx context.Context, topic string, options Dict) (ID, error) {
	if options == nil {
		options = Dict{}
	}
	sub := ID(c.nextSub.Add(1))

	err := c.await(ctx, func() error {
		return c.peer.Subscribe(topic, func(ev *nxwamp.Event) {
			c.deliver(eventFromPeer(ev, sub))
		}, options)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to subscribe to '%s': %w", topic, err)
	}

	c.logger.Debugf("Subscribed to '%s' (handle %d)", topic, sub)
	return sub, nil
}

// Publish sends an unacknowledged publication to topic
func (c *Client) Publish(topic string, options Dict, args List, kwargs Dict) error {
	select {
	case <-c.done:
		return c.Err()
	default:
	}

	if options == nil {
		options = Dict{}
	}
	if err := c.peer.Publish(topic, options, args, kwargs); err != nil {
		return fmt.Errorf("publish to '%s' failed: %w", topic, err)
	}
	return nil
}

// Close leaves the realm and closes the connection
func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}

	if err := c.peer.Close(); err != nil {
		c.logger.Debugf("Failed to close session cleanly: %v", err)
	}
	<-c.done
	return nil
}

// await runs a blocking peer call, giving up when ctx ends or the session dies.
// The peer's own response timeout ends the call itself.
func (c *Client) await(ctx context.Context, call func() error) error {
	result := make(chan error, 1)
	go func() { result <- call() }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.Err()
	}
}

func (c *Client) deliver(ev *Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// watch records why the peer went away and closes Done
func (c *Client) watch() {
	<-c.peer.Done()

	err := ErrSessionClosed
	if !c.closing.Load() {
		err = ErrConnectionLost
		c.logger.Warnf("Router session %d ended: %v", c.peer.ID(), err)
	}

	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	close(c.done)
}

// peerLogger routes the WAMP library's log output into our logger
type peerLogger struct {
	logger customlog.Logger
}

func (l peerLogger) Print(v ...interface{}) {
	l.logger.Debugf("%s", fmt.Sprint(v...))
}

func (l peerLogger) Println(v ...interface{}) {
	l.logger.Debugf("%s", strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l peerLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(format, v...)
}
