package command

import (
	"fmt"

	"github.com/open-teleop/mapbridge/domain/diagnostic"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
	"github.com/open-teleop/mapbridge/pkg/slot"
	"github.com/open-teleop/mapbridge/pkg/wamp"
)

// Publisher is the part of a router session the dispatcher needs
type Publisher interface {
	Publish(topic string, options wamp.Dict, args wamp.List, kwargs wamp.Dict) error
}

// Topics names the outbound topics per command kind
type Topics struct {
	Position string
	PID      string
}

// Dispatcher drains the outbound command slot into publications.
// It only ever takes from its slot.
type Dispatcher struct {
	in     slot.Source[Command]
	topics Topics
	diag   *diagnostic.DiagnosticService
	logger customlog.Logger
}

// NewDispatcher creates a dispatcher reading from in. diag may be nil.
func NewDispatcher(in slot.Source[Command], topics Topics, diag *diagnostic.DiagnosticService, logger customlog.Logger) *Dispatcher {
	return &Dispatcher{
		in:     in,
		topics: topics,
		diag:   diag,
		logger: logger,
	}
}

// DrainAndPublish publishes at most one pending command. An empty slot is a
// no-op. Commands without an outbound topic are logged and dropped. The only
// error returned is a failed publish.
func (d *Dispatcher) DrainAndPublish(pub Publisher) error {
	cmd, ok := d.in.Take()
	if !ok {
		return nil
	}

	var topic string
	switch cmd.Kind {
	case KindPosition:
		topic = d.topics.Position
	case KindPID:
		topic = d.topics.PID
	default:
		d.logger.Warnf("Unknown command: %s, ignoring", cmd.Kind)
		if d.diag != nil {
			d.diag.RecordCommandDiscarded()
		}
		return nil
	}

	if err := pub.Publish(topic, nil, wamp.List(cmd.Args), nil); err != nil {
		if d.diag != nil {
			d.diag.RecordCommandDiscarded()
		}
		return fmt.Errorf("failed to publish %s command to '%s': %w", cmd.Kind, topic, err)
	}

	d.logger.Debugf("Published %s command to '%s': %v", cmd.Kind, topic, cmd.Args)
	if d.diag != nil {
		d.diag.RecordCommandPublished()
	}
	return nil
}
