package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/open-teleop/mapbridge/domain/command"
	"github.com/open-teleop/mapbridge/domain/telemetry"
	"github.com/open-teleop/mapbridge/pkg/wamp"
)

func TestLifecycleReachesActive(t *testing.T) {
	sess := newFakeSession()
	f := newLifecycleFixture(sessionDialer(sess))

	if f.lifecycle.State() != StateDisconnected {
		t.Fatalf("Expected initial state disconnected, got %s", f.lifecycle.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.lifecycle.Run(ctx) }()

	waitFor(t, "active state", func() bool { return f.lifecycle.State() == StateActive })

	sess.mu.Lock()
	procedure, opts, topic := sess.procedure, sess.registerOpts, sess.topic
	sess.mu.Unlock()

	if procedure != "uavsim.map.status" {
		t.Errorf("Expected procedure uavsim.map.status, got %s", procedure)
	}
	if opts["invoke"] != wamp.InvokeRoundRobin {
		t.Errorf("Expected roundrobin invocation policy, got %v", opts)
	}
	if topic != "sim.telemetry" {
		t.Errorf("Expected subscription to sim.telemetry, got %s", topic)
	}
	if f.diag.Snapshot().SessionState != "active" {
		t.Errorf("Expected diagnostics to report active")
	}

	cancel()
	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if f.lifecycle.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", f.lifecycle.State())
	}
	if !sess.isClosed() {
		t.Errorf("Expected session to be closed on exit")
	}
}

func TestLifecycleIngestsAndDispatches(t *testing.T) {
	sess := newFakeSession()
	f := newLifecycleFixture(sessionDialer(sess))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- f.lifecycle.Run(ctx) }()

	waitFor(t, "active state", func() bool { return f.lifecycle.State() == StateActive })

	sess.events <- &wamp.Event{
		Subscription: testSubscription,
		Args: wamp.List{map[string]interface{}{
			"latitude-deg":  47.6,
			"longitude-deg": -122.3,
			"heading-deg":   90.0,
		}},
	}
	f.commands.Put(command.PID(0.5, 0.1, 0.05))

	var sample telemetry.Sample
	waitFor(t, "telemetry sample", func() bool {
		s, ok := f.samples.Take()
		sample = s
		return ok
	})
	if sample != (telemetry.Sample{Latitude: 47.6, Longitude: -122.3, Heading: 90.0}) {
		t.Errorf("Unexpected sample %+v", sample)
	}

	waitFor(t, "pid publication", func() bool { return len(sess.publications()) == 1 })
	pub := sess.publications()[0]
	if pub.topic != "map.pid" || len(pub.args) != 3 || pub.args[0] != 0.5 {
		t.Errorf("Unexpected publication %+v", pub)
	}
	if f.commands.Len() != 0 {
		t.Errorf("Expected command slot to be drained")
	}
}

func TestLifecycleIgnoresForeignSubscription(t *testing.T) {
	sess := newFakeSession()
	f := newLifecycleFixture(sessionDialer(sess))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- f.lifecycle.Run(ctx) }()

	waitFor(t, "active state", func() bool { return f.lifecycle.State() == StateActive })

	sess.events <- &wamp.Event{
		Subscription: testSubscription + 1,
		Kwargs: wamp.Dict{
			"latitude-deg":  1.0,
			"longitude-deg": 2.0,
			"heading-deg":   3.0,
		},
	}
	sess.events <- &wamp.Event{
		Subscription: testSubscription,
		Kwargs: wamp.Dict{
			"latitude-deg":  10.0,
			"longitude-deg": 20.0,
			"heading-deg":   30.0,
		},
	}

	// Events are handled in order, so the second one landing means the first was seen
	var sample telemetry.Sample
	waitFor(t, "telemetry sample", func() bool {
		s, ok := f.samples.Take()
		sample = s
		return ok
	})
	if sample != (telemetry.Sample{Latitude: 10, Longitude: 20, Heading: 30}) {
		t.Errorf("Expected only the subscribed event to reach the slot, got %+v", sample)
	}
	if got := f.diag.Snapshot().TelemetryReceived; got != 1 {
		t.Errorf("Expected one ingested event, got %d", got)
	}

	cancel()
	waitErr(t, errCh)
}

var (
	errProcedureExists = errors.New("wamp.error.procedure_already_exists")
	errNotAuthorized   = errors.New("wamp.error.not_authorized")
)

func TestLifecycleSetupFailure(t *testing.T) {
	tests := []struct {
		name string
		sess func() *fakeSession
		want error
	}{
		{name: "register", sess: func() *fakeSession {
			s := newFakeSession()
			s.registerErr = errProcedureExists
			return s
		}, want: errProcedureExists},
		{name: "subscribe", sess: func() *fakeSession {
			s := newFakeSession()
			s.subscribeErr = errNotAuthorized
			return s
		}, want: errNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := tt.sess()
			f := newLifecycleFixture(sessionDialer(sess))

			err := f.lifecycle.Run(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if errors.Is(err, ErrSessionLost) {
				t.Errorf("Setup failure must not be reported as a lost active session")
			}
			if f.lifecycle.State() != StateTerminated {
				t.Errorf("Expected terminated state, got %s", f.lifecycle.State())
			}
			if !sess.isClosed() {
				t.Errorf("Expected session to be closed")
			}
		})
	}
}

func TestLifecycleSetupTimeout(t *testing.T) {
	sess := newFakeSession()
	sess.stallRegister = true
	f := newLifecycleFixture(sessionDialer(sess), func(o *LifecycleOptions) {
		o.SetupTimeout = 50 * time.Millisecond
	})

	errCh := make(chan error, 1)
	go func() { errCh <- f.lifecycle.Run(context.Background()) }()

	err := waitErr(t, errCh)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected setup to hit its deadline, got %v", err)
	}
	if errors.Is(err, ErrSessionLost) {
		t.Errorf("Setup timeout must not be reported as a lost active session")
	}
	if f.lifecycle.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", f.lifecycle.State())
	}
	if !sess.isClosed() {
		t.Errorf("Expected session to be closed")
	}
}

func TestLifecycleDialFailure(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:8091: connect: connection refused")
	f := newLifecycleFixture(DialerFunc(func(ctx context.Context) (Session, error) {
		return nil, refused
	}))

	err := f.lifecycle.Run(context.Background())
	if !errors.Is(err, refused) {
		t.Fatalf("Expected wrapped dial error, got %v", err)
	}
	if f.lifecycle.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", f.lifecycle.State())
	}
}

func TestLifecycleTransportLoss(t *testing.T) {
	sess := newFakeSession()
	f := newLifecycleFixture(sessionDialer(sess))

	errCh := make(chan error, 1)
	go func() { errCh <- f.lifecycle.Run(context.Background()) }()

	waitFor(t, "active state", func() bool { return f.lifecycle.State() == StateActive })

	reset := errors.New("connection reset by peer")
	sess.drop(reset)

	err := waitErr(t, errCh)
	if !errors.Is(err, ErrSessionLost) || !errors.Is(err, reset) {
		t.Errorf("Expected ErrSessionLost wrapping the transport error, got %v", err)
	}
	if f.lifecycle.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", f.lifecycle.State())
	}
}

func TestLifecyclePublishFailureEndsSession(t *testing.T) {
	sess := newFakeSession()
	sess.err = errors.New("broken pipe")
	f := newLifecycleFixture(sessionDialer(sess))
	f.commands.Put(command.PID(1, 2, 3))

	errCh := make(chan error, 1)
	go func() { errCh <- f.lifecycle.Run(context.Background()) }()

	err := waitErr(t, errCh)
	if !errors.Is(err, ErrSessionLost) {
		t.Errorf("Expected ErrSessionLost after publish failure, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateDisconnected: "disconnected",
		StateJoining:      "joining",
		StateActive:       "active",
		StateTerminated:   "terminated",
		State(9):          "state(9)",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("Expected %q, got %q", w, s.String())
		}
	}
}
