package config

import "time"

// Defaults used when the bootstrap file omits a field
const (
	DefaultLogLevel          = "debug"
	DefaultHTTPPort          = 8092
	DefaultRouterURL         = "ws://127.0.0.1:8091/uavsim"
	DefaultRealm             = "uavsim"
	DefaultHandshakeTimeout  = 5000
	DefaultRequestTimeout    = 5000
	DefaultKeepAlive         = 2000
	DefaultSetupTimeout      = 10000
	DefaultTickIntervalMs    = 100
	DefaultProcedure         = "uavsim.map.status"
	DefaultEventBuffer       = 64
	DefaultTelemetryTopic    = "sim.telemetry"
	DefaultPositionTopic     = "map.position"
	DefaultPIDTopic          = "map.pid"
	DefaultReconnectInterval = 250
	DefaultReconnectMax      = 5000
	DefaultLogMaxSizeMB      = 10
	DefaultLogMaxBackups     = 3
)

// Default returns a configuration with every default applied
func Default() *BootstrapConfig {
	cfg := &BootstrapConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields in place
func (c *BootstrapConfig) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Router.URL == "" {
		c.Router.URL = DefaultRouterURL
	}
	if c.Router.Realm == "" {
		c.Router.Realm = DefaultRealm
	}
	if c.Router.HandshakeTimeoutMs == 0 {
		c.Router.HandshakeTimeoutMs = DefaultHandshakeTimeout
	}
	if c.Router.RequestTimeoutMs == 0 {
		c.Router.RequestTimeoutMs = DefaultRequestTimeout
	}
	if c.Router.KeepAliveMs == 0 {
		c.Router.KeepAliveMs = DefaultKeepAlive
	}
	if c.Session.TickIntervalMs == 0 {
		c.Session.TickIntervalMs = DefaultTickIntervalMs
	}
	if c.Session.Procedure == "" {
		c.Session.Procedure = DefaultProcedure
	}
	if c.Session.EventBuffer == 0 {
		c.Session.EventBuffer = DefaultEventBuffer
	}
	if c.Topics.Telemetry == "" {
		c.Topics.Telemetry = DefaultTelemetryTopic
	}
	if c.Topics.Position == "" {
		c.Topics.Position = DefaultPositionTopic
	}
	if c.Topics.PID == "" {
		c.Topics.PID = DefaultPIDTopic
	}
	// nil means "not set"; an explicit 0 keeps the immediate-retry behaviour
	if c.Reconnect.IntervalMs == nil {
		interval := DefaultReconnectInterval
		c.Reconnect.IntervalMs = &interval
	}
	if c.Reconnect.MaxIntervalMs == 0 {
		c.Reconnect.MaxIntervalMs = DefaultReconnectMax
	}
}

// TickInterval returns the drain-and-publish cadence
func (c *BootstrapConfig) TickInterval() time.Duration {
	return time.Duration(c.Session.TickIntervalMs) * time.Millisecond
}

// HandshakeTimeout returns the WebSocket handshake timeout
func (c *BootstrapConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.Router.HandshakeTimeoutMs) * time.Millisecond
}

// RequestTimeout returns how long a REGISTER or SUBSCRIBE may wait for its reply
func (c *BootstrapConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Router.RequestTimeoutMs) * time.Millisecond
}

// KeepAlive returns the WebSocket ping interval
func (c *BootstrapConfig) KeepAlive() time.Duration {
	return time.Duration(c.Router.KeepAliveMs) * time.Millisecond
}

// SetupTimeout bounds the whole register-and-subscribe step of a new session
func (c *BootstrapConfig) SetupTimeout() time.Duration {
	if d := 2 * c.RequestTimeout(); d > DefaultSetupTimeout*time.Millisecond {
		return d
	}
	return DefaultSetupTimeout * time.Millisecond
}

// ReconnectInterval returns the initial delay between failed join attempts
func (c *BootstrapConfig) ReconnectInterval() time.Duration {
	if c.Reconnect.IntervalMs == nil {
		return 0
	}
	return time.Duration(*c.Reconnect.IntervalMs) * time.Millisecond
}

// MaxReconnectInterval returns the cap for the retry delay
func (c *BootstrapConfig) MaxReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect.MaxIntervalMs) * time.Millisecond
}
