package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/mapbridge/domain/command"
	"github.com/open-teleop/mapbridge/domain/diagnostic"
	"github.com/open-teleop/mapbridge/domain/telemetry"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
	"github.com/open-teleop/mapbridge/pkg/slot"
	"github.com/open-teleop/mapbridge/pkg/wamp"
)

const testSubscription wamp.ID = 200

type publication struct {
	topic string
	args  wamp.List
}

// fakeSession is an in-memory router session
type fakeSession struct {
	events chan *wamp.Event
	done   chan struct{}

	registerErr  error
	subscribeErr error

	// stallRegister makes Register wait for its context
	stallRegister bool

	mu            sync.Mutex
	published     []publication
	procedure     string
	registerOpts  wamp.Dict
	handler       wamp.InvocationHandler
	topic         string
	err           error
	closed        bool
	closeOnce     sync.Once
	terminateOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan *wamp.Event, 8),
		done:   make(chan struct{}),
	}
}

func (s *fakeSession) Publish(topic string, options wamp.Dict, args wamp.List, kwargs wamp.Dict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, publication{topic: topic, args: args})
	return nil
}

func (s *fakeSession) Register(ctx context.Context, procedure string, options wamp.Dict, handler wamp.InvocationHandler) error {
	if s.stallRegister {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.registerErr != nil {
		return s.registerErr
	}
	s.mu.Lock()
	s.procedure = procedure
	s.registerOpts = options
	s.handler = handler
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Subscribe(ctx context.Context, topic string, options wamp.Dict) (wamp.ID, error) {
	if s.subscribeErr != nil {
		return 0, s.subscribeErr
	}
	s.mu.Lock()
	s.topic = topic
	s.mu.Unlock()
	return testSubscription, nil
}

func (s *fakeSession) Events() <-chan *wamp.Event { return s.events }
func (s *fakeSession) Done() <-chan struct{}      { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return nil
}

// drop simulates a transport failure
func (s *fakeSession) drop(err error) {
	s.terminateOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *fakeSession) publications() []publication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publication(nil), s.published...)
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type lifecycleFixture struct {
	lifecycle *SessionLifecycle
	samples   *slot.Slot[telemetry.Sample]
	commands  *slot.Slot[command.Command]
	diag      *diagnostic.DiagnosticService
}

func newLifecycleFixture(dialer Dialer, tweaks ...func(*LifecycleOptions)) *lifecycleFixture {
	logger := customlog.NewNopLogger()
	samples := slot.New[telemetry.Sample]()
	commands := slot.New[command.Command]()
	diag := diagnostic.NewDiagnosticService()

	ingestor := telemetry.NewIngestor(samples, diag, logger)
	dispatcher := command.NewDispatcher(commands, command.Topics{Position: "map.position", PID: "map.pid"}, diag, logger)

	opts := LifecycleOptions{
		Procedure:      "uavsim.map.status",
		TelemetryTopic: "sim.telemetry",
		TickInterval:   5 * time.Millisecond,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}

	lc := NewSessionLifecycle(dialer, ingestor, dispatcher, diag, opts, logger)

	return &lifecycleFixture{lifecycle: lc, samples: samples, commands: commands, diag: diag}
}

func sessionDialer(sess *fakeSession) Dialer {
	return DialerFunc(func(ctx context.Context) (Session, error) {
		return sess, nil
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for Run to return")
		return nil
	}
}
