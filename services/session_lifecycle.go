package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/open-teleop/mapbridge/domain/command"
	"github.com/open-teleop/mapbridge/domain/diagnostic"
	"github.com/open-teleop/mapbridge/domain/telemetry"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
	"github.com/open-teleop/mapbridge/pkg/wamp"
)

// ErrSessionLost marks a failure after the session had become active
var ErrSessionLost = errors.New("router session lost")

// State of a SessionLifecycle
type State int32

const (
	StateDisconnected State = iota
	StateJoining
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Session is a joined router session. *wamp.Client implements it.
type Session interface {
	command.Publisher
	Register(ctx context.Context, procedure string, options wamp.Dict, handler wamp.InvocationHandler) error
	Subscribe(ctx context.Context, topic string, options wamp.Dict) (wamp.ID, error)
	Events() <-chan *wamp.Event
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Dialer opens a new Session
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context) (Session, error)

func (f DialerFunc) Dial(ctx context.Context) (Session, error) {
	return f(ctx)
}

// WAMPDialer dials the router with the same endpoint and realm every time
type WAMPDialer struct {
	Config wamp.Config
	Logger customlog.Logger
}

func (d *WAMPDialer) Dial(ctx context.Context) (Session, error) {
	c, err := wamp.Dial(ctx, d.Config, d.Logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LifecycleOptions configures an established session
type LifecycleOptions struct {
	Procedure      string
	TelemetryTopic string
	TickInterval   time.Duration
	// SetupTimeout bounds registration and subscription together
	SetupTimeout time.Duration
}

// SessionLifecycle runs one router session from join to termination.
//
// Telemetry events and the command tick are handled on the goroutine that
// calls Run, so ingestion and dispatch never overlap.
type SessionLifecycle struct {
	dialer     Dialer
	ingestor   *telemetry.Ingestor
	dispatcher *command.Dispatcher
	diag       *diagnostic.DiagnosticService
	opts       LifecycleOptions
	logger     customlog.Logger
	state      atomic.Int32
}

// NewSessionLifecycle creates a lifecycle in the Disconnected state
func NewSessionLifecycle(
	dialer Dialer,
	ingestor *telemetry.Ingestor,
	dispatcher *command.Dispatcher,
	diag *diagnostic.DiagnosticService,
	opts LifecycleOptions,
	logger customlog.Logger,
) *SessionLifecycle {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = 10 * time.Second
	}
	return &SessionLifecycle{
		dialer:     dialer,
		ingestor:   ingestor,
		dispatcher: dispatcher,
		diag:       diag,
		opts:       opts,
		logger:     logger,
	}
}

// State returns the current lifecycle state
func (l *SessionLifecycle) State() State {
	return State(l.state.Load())
}

func (l *SessionLifecycle) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		l.logger.Debugf("Session state %s -> %s", prev, s)
	}
	if l.diag != nil {
		l.diag.SetSessionState(s.String())
	}
}

// Run joins the router, performs the one-time setup and serves the session
// until the transport fails or ctx is cancelled. It always ends in
// StateTerminated. Errors after the session became active wrap ErrSessionLost.
func (l *SessionLifecycle) Run(ctx context.Context) error {
	l.setState(StateJoining)

	sess, err := l.dialer.Dial(ctx)
	if err != nil {
		l.setState(StateTerminated)
		return fmt.Errorf("failed to join router: %w", err)
	}
	defer sess.Close()

	subID, err := l.setup(ctx, sess)
	if err != nil {
		l.setState(StateTerminated)
		return err
	}

	l.setState(StateActive)
	if l.diag != nil {
		l.diag.RecordSessionEstablished()
	}
	l.logger.Infof("Session active: listening on '%s', publishing every %v", l.opts.TelemetryTopic, l.opts.TickInterval)

	err = l.serve(ctx, sess, subID)
	l.setState(StateTerminated)
	return err
}

// setup registers the status procedure and subscribes to telemetry
func (l *SessionLifecycle) setup(ctx context.Context, sess Session) (wamp.ID, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.SetupTimeout)
	defer cancel()

	var handler wamp.InvocationHandler = func(ctx context.Context, inv *wamp.Invocation) wamp.InvokeResult {
		return wamp.InvokeResult{Kwargs: wamp.Dict{"session_state": l.State().String()}}
	}
	if l.diag != nil {
		handler = l.diag.StatusHandler
	}

	options := wamp.Dict{"invoke": wamp.InvokeRoundRobin}
	if err := sess.Register(ctx, l.opts.Procedure, options, handler); err != nil {
		return 0, fmt.Errorf("session setup failed: %w", err)
	}

	subID, err := sess.Subscribe(ctx, l.opts.TelemetryTopic, nil)
	if err != nil {
		return 0, fmt.Errorf("session setup failed: %w", err)
	}
	return subID, nil
}

func (l *SessionLifecycle) serve(ctx context.Context, sess Session, subID wamp.ID) error {
	ticker := time.NewTicker(l.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-sess.Done():
			cause := sess.Err()
			if cause == nil {
				cause = wamp.ErrSessionClosed
			}
			return fmt.Errorf("%w: %w", ErrSessionLost, cause)

		case ev := <-sess.Events():
			if ev.Subscription != subID {
				l.logger.Debugf("Ignoring event for subscription %d", ev.Subscription)
				continue
			}
			l.ingestor.OnEvent(ev)

		case <-ticker.C:
			if err := l.dispatcher.DrainAndPublish(sess); err != nil {
				return fmt.Errorf("%w: %w", ErrSessionLost, err)
			}
		}
	}
}
