package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	customlog "github.com/open-teleop/mapbridge/pkg/log"
	"github.com/open-teleop/mapbridge/pkg/wamp"
)

// stalledRouter welcomes every session and never answers REGISTER. It
// returns its ws:// URL and a count of accepted connections.
func stalledRouter(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{Subprotocols: []string{"wamp.2.json"}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)

		var hello []interface{}
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		conn.WriteJSON([]interface{}{2, 42, map[string]interface{}{
			"roles": map[string]interface{}{"broker": map[string]interface{}{}, "dealer": map[string]interface{}{}},
		}})

		for {
			var msg []interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if code, _ := msg[0].(float64); code == 6 {
				conn.WriteJSON([]interface{}{6, map[string]interface{}{}, "wamp.close.goodbye_and_out"})
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/uavsim", &conns
}

func stalledDialer(url string) Dialer {
	return &WAMPDialer{
		Config: wamp.Config{
			URL:              url,
			Realm:            "uavsim",
			HandshakeTimeout: 2 * time.Second,
			RequestTimeout:   time.Minute,
		},
		Logger: customlog.NewNopLogger(),
	}
}

func TestLifecycleStalledRegisterTerminates(t *testing.T) {
	url, _ := stalledRouter(t)
	f := newLifecycleFixture(stalledDialer(url), func(o *LifecycleOptions) {
		o.SetupTimeout = 100 * time.Millisecond
	})

	errCh := make(chan error, 1)
	go func() { errCh <- f.lifecycle.Run(context.Background()) }()

	err := waitErr(t, errCh)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected setup deadline, got %v", err)
	}
	if f.lifecycle.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", f.lifecycle.State())
	}
	if got := f.diag.Snapshot().SessionsEstablished; got != 0 {
		t.Errorf("Expected no established session, got %d", got)
	}
}

func TestSupervisorRedialsAfterStalledRegister(t *testing.T) {
	url, conns := stalledRouter(t)
	f := newLifecycleFixture(stalledDialer(url), func(o *LifecycleOptions) {
		o.SetupTimeout = 100 * time.Millisecond
	})
	sup := NewReconnectSupervisor(f.lifecycle, RetryPolicy{Interval: 50 * time.Millisecond}, f.diag, customlog.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()

	waitFor(t, "second connection", func() bool { return conns.Load() >= 2 })
	if got := f.diag.Snapshot().ReconnectAttempts; got < 1 {
		t.Errorf("Expected a reconnect attempt, got %d", got)
	}
	if f.lifecycle.State() == StateActive {
		t.Errorf("Lifecycle must not become active while REGISTER is unanswered")
	}

	cancel()
	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
