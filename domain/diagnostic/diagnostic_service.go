package diagnostic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/mapbridge/pkg/wamp"
)

// BridgeMetrics is a point-in-time view of the bridge
type BridgeMetrics struct {
	Timestamp           time.Time `json:"timestamp"`
	SessionState        string    `json:"session_state"`
	ReconnectAttempts   int64     `json:"reconnect_attempts"`
	SessionsEstablished int64     `json:"sessions_established"`
	TelemetryReceived   int64     `json:"telemetry_received"`
	TelemetryDiscarded  int64     `json:"telemetry_discarded"`
	CommandsPublished   int64     `json:"commands_published"`
	CommandsDiscarded   int64     `json:"commands_discarded"`
	LastTelemetry       time.Time `json:"last_telemetry"`
	LastError           string    `json:"last_error,omitempty"`
}

// DiagnosticService collects counters from the session goroutine and serves
// them to the console API and to router callers. All methods are safe for
// concurrent use.
type DiagnosticService struct {
	reconnectAttempts   atomic.Int64
	sessionsEstablished atomic.Int64
	telemetryReceived   atomic.Int64
	telemetryDiscarded  atomic.Int64
	commandsPublished   atomic.Int64
	commandsDiscarded   atomic.Int64

	mu            sync.RWMutex
	state         string
	lastTelemetry time.Time
	lastError     string
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService() *DiagnosticService {
	return &DiagnosticService{state: "disconnected"}
}

func (s *DiagnosticService) SetSessionState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *DiagnosticService) RecordReconnectAttempt() {
	s.reconnectAttempts.Add(1)
}

func (s *DiagnosticService) RecordSessionEstablished() {
	s.sessionsEstablished.Add(1)
}

func (s *DiagnosticService) RecordTelemetry() {
	s.telemetryReceived.Add(1)
	s.mu.Lock()
	s.lastTelemetry = time.Now()
	s.mu.Unlock()
}

func (s *DiagnosticService) RecordTelemetryDiscarded() {
	s.telemetryDiscarded.Add(1)
}

func (s *DiagnosticService) RecordCommandPublished() {
	s.commandsPublished.Add(1)
}

func (s *DiagnosticService) RecordCommandDiscarded() {
	s.commandsDiscarded.Add(1)
}

// RecordError keeps the message of the most recent session failure
func (s *DiagnosticService) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Snapshot returns the current metrics
func (s *DiagnosticService) Snapshot() BridgeMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return BridgeMetrics{
		Timestamp:           time.Now(),
		SessionState:        s.state,
		ReconnectAttempts:   s.reconnectAttempts.Load(),
		SessionsEstablished: s.sessionsEstablished.Load(),
		TelemetryReceived:   s.telemetryReceived.Load(),
		TelemetryDiscarded:  s.telemetryDiscarded.Load(),
		CommandsPublished:   s.commandsPublished.Load(),
		CommandsDiscarded:   s.commandsDiscarded.Load(),
		LastTelemetry:       s.lastTelemetry,
		LastError:           s.lastError,
	}
}

// GetMetricsHandler handles API requests for bridge metrics
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.Snapshot(),
	})
}

// StatusHandler serves the registered status procedure. The snapshot is
// returned as keyword results.
func (s *DiagnosticService) StatusHandler(ctx context.Context, inv *wamp.Invocation) wamp.InvokeResult {
	m := s.Snapshot()
	kwargs := wamp.Dict{
		"session_state":        m.SessionState,
		"reconnect_attempts":   m.ReconnectAttempts,
		"sessions_established": m.SessionsEstablished,
		"telemetry_received":   m.TelemetryReceived,
		"telemetry_discarded":  m.TelemetryDiscarded,
		"commands_published":   m.CommandsPublished,
		"commands_discarded":   m.CommandsDiscarded,
	}
	if !m.LastTelemetry.IsZero() {
		kwargs["last_telemetry"] = m.LastTelemetry.UTC().Format(time.RFC3339Nano)
	}
	if m.LastError != "" {
		kwargs["last_error"] = m.LastError
	}
	return wamp.InvokeResult{Kwargs: kwargs}
}
