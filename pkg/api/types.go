package api

// --- Data Structures for HTTP and WebSocket Messages ---

// WebSocket message types
const (
	MsgSetLocation    = "setLocation"
	MsgLocationUpdate = "locationUpdate"
	MsgForceLocation  = "forceLocation"
	MsgForcePID       = "forcePID"
	MsgCommand        = "command"
)

// CommandRequest queues a raw command of any kind
type CommandRequest struct {
	Kind string        `json:"kind"`
	Args []interface{} `json:"args"`
}

// PIDRequest carries new controller gains. All three are required.
type PIDRequest struct {
	Kp *float64 `json:"kp"`
	Ki *float64 `json:"ki"`
	Kd *float64 `json:"kd"`
}

// LocationRequest carries a location override. Both fields are required.
type LocationRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// MapMessage is an inbound frame on the map WebSocket. Only the fields
// relevant to Type are read.
type MapMessage struct {
	Type string        `json:"type"`
	Lat  *float64      `json:"lat,omitempty"`
	Lng  *float64      `json:"lng,omitempty"`
	Kp   *float64      `json:"kp,omitempty"`
	Ki   *float64      `json:"ki,omitempty"`
	Kd   *float64      `json:"kd,omitempty"`
	Kind string        `json:"kind,omitempty"`
	Args []interface{} `json:"args,omitempty"`
}

// LocationUpdate is sent to the map client in answer to setLocation
type LocationUpdate struct {
	Type    string  `json:"type"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Heading float64 `json:"heading"`
}
