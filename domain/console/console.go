// Package console is the presentation-layer side of the bridge: it polls the
// latest telemetry and queues operator commands.
package console

import (
	"github.com/open-teleop/mapbridge/domain/command"
	"github.com/open-teleop/mapbridge/domain/telemetry"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
	"github.com/open-teleop/mapbridge/pkg/slot"
)

// Console reads the telemetry slot and writes the command slot, never the
// other way round.
type Console struct {
	telemetry slot.Source[telemetry.Sample]
	commands  slot.Sink[command.Command]
	logger    customlog.Logger
}

// NewConsole creates a console over the two shared slots
func NewConsole(samples slot.Source[telemetry.Sample], commands slot.Sink[command.Command], logger customlog.Logger) *Console {
	return &Console{
		telemetry: samples,
		commands:  commands,
		logger:    logger,
	}
}

// LatestTelemetry takes the pending sample, if any
func (c *Console) LatestTelemetry() (telemetry.Sample, bool) {
	return c.telemetry.Take()
}

// SendCommand validates cmd and queues it, replacing any unsent command
func (c *Console) SendCommand(cmd command.Command) error {
	if err := command.ValidateCommand(cmd); err != nil {
		return err
	}
	c.commands.Put(cmd)
	c.logger.Debugf("Queued %s command: %v", cmd.Kind, cmd.Args)
	return nil
}

// ForceLocation queues a location override
func (c *Console) ForceLocation(lat, lng float64) error {
	return c.SendCommand(command.Location(lat, lng))
}

// ForcePID queues new controller gains
func (c *Console) ForcePID(kp, ki, kd float64) error {
	return c.SendCommand(command.PID(kp, ki, kd))
}

// ForcePosition queues a position command
func (c *Console) ForcePosition(args ...interface{}) error {
	return c.SendCommand(command.Position(args...))
}
