package api

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/open-teleop/mapbridge/domain/command"
	"github.com/open-teleop/mapbridge/domain/console"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
)

// MapWebSocketHandler serves one map client. The client polls for location
// with setLocation and pushes overrides and raw commands.
func MapWebSocketHandler(conn *websocket.Conn, c *console.Console, logger customlog.Logger) {
	logger.Infof("Map WebSocket connected: %s", conn.RemoteAddr())
	var (
		mt  int
		msg []byte
		err error
	)
	for {
		if mt, msg, err = conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Errorf("Map WS read error: %v", err)
			} else if err != websocket.ErrCloseSent && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				logger.Infof("Map WS connection closed: %v", err)
			} else {
				logger.Infof("Map WS connection closed normally.")
			}
			break
		}

		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text Map WS message type: %d", mt)
			continue
		}

		var in MapMessage
		if err := sonnet.Unmarshal(msg, &in); err != nil {
			logger.Warnf("Failed to unmarshal map message: %v. Message: %s", err, string(msg))
			continue
		}

		reply, err := handleMapMessage(c, &in)
		if err != nil {
			logger.Warnf("Rejected %s message: %v", in.Type, err)
			continue
		}
		if reply == nil {
			continue
		}

		out, err := sonnet.Marshal(reply)
		if err != nil {
			logger.Errorf("Failed to encode %s reply: %v", in.Type, err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			logger.Errorf("Map WS write error: %v", err)
			break
		}
	}
	logger.Infof("Map WebSocket disconnected: %s", conn.RemoteAddr())
}

// handleMapMessage applies one inbound frame and returns the reply to send, if any
func handleMapMessage(c *console.Console, in *MapMessage) (interface{}, error) {
	switch in.Type {
	case MsgSetLocation:
		sample, ok := c.LatestTelemetry()
		if !ok {
			return nil, nil
		}
		return &LocationUpdate{
			Type:    MsgLocationUpdate,
			Lat:     sample.Latitude,
			Lng:     sample.Longitude,
			Heading: sample.Heading,
		}, nil

	case MsgForceLocation:
		if in.Lat == nil || in.Lng == nil {
			return nil, errors.New("lat and lng are required")
		}
		return nil, c.ForceLocation(*in.Lat, *in.Lng)

	case MsgForcePID:
		if in.Kp == nil || in.Ki == nil || in.Kd == nil {
			return nil, errors.New("kp, ki and kd are required")
		}
		return nil, c.ForcePID(*in.Kp, *in.Ki, *in.Kd)

	case MsgCommand:
		return nil, c.SendCommand(command.Command{Kind: command.Kind(in.Kind), Args: in.Args})
	}
	return nil, fmt.Errorf("unknown message type %q", in.Type)
}
