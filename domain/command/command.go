package command

import (
	"fmt"
	"math"
)

// Kind tags an outbound command
type Kind string

// Known command kinds, as written by the console
const (
	KindPosition Kind = "pos"
	KindPID      Kind = "pid"
	KindLocation Kind = "loc"
)

// Command is one operator command waiting to be published. Args is the
// positional payload; its shape depends on Kind.
type Command struct {
	Kind Kind          `json:"kind"`
	Args []interface{} `json:"args"`
}

// PID builds a gain update command
func PID(kp, ki, kd float64) Command {
	return Command{Kind: KindPID, Args: []interface{}{kp, ki, kd}}
}

// Position builds a position command from its positional arguments
func Position(args ...interface{}) Command {
	return Command{Kind: KindPosition, Args: args}
}

// Location builds a location override command
func Location(lat, lng float64) Command {
	return Command{Kind: KindLocation, Args: []interface{}{lat, lng}}
}

// ValidateCommand checks the payload of the known kinds. Unknown kinds pass:
// they are discarded by the dispatcher, not rejected at the console.
func ValidateCommand(cmd Command) error {
	if cmd.Kind == "" {
		return fmt.Errorf("command kind is empty")
	}

	switch cmd.Kind {
	case KindPID:
		if len(cmd.Args) != 3 {
			return fmt.Errorf("pid command needs 3 gains (kp, ki, kd), got %d", len(cmd.Args))
		}
		return finiteNumbers(cmd.Args)
	case KindLocation:
		if len(cmd.Args) != 2 {
			return fmt.Errorf("location command needs (lat, lng), got %d values", len(cmd.Args))
		}
		return finiteNumbers(cmd.Args)
	case KindPosition:
		if len(cmd.Args) == 0 {
			return fmt.Errorf("position command has no arguments")
		}
	}
	return nil
}

func finiteNumbers(args []interface{}) error {
	for i, a := range args {
		f, ok := a.(float64)
		if !ok {
			return fmt.Errorf("argument %d is not a number: %v", i, a)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("argument %d is not finite", i)
		}
	}
	return nil
}
