package telemetry

import (
	"fmt"

	"github.com/open-teleop/mapbridge/domain/diagnostic"
	customlog "github.com/open-teleop/mapbridge/pkg/log"
	"github.com/open-teleop/mapbridge/pkg/slot"
	"github.com/open-teleop/mapbridge/pkg/wamp"
)

// Keys of the sim.telemetry payload
const (
	KeyLatitude  = "latitude-deg"
	KeyLongitude = "longitude-deg"
	KeyHeading   = "heading-deg"
)

// Sample is the vehicle position shown on the map
type Sample struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Heading   float64 `json:"heading"`
}

// Ingestor turns telemetry events into samples for the console.
// It only ever writes to its slot.
type Ingestor struct {
	out    slot.Sink[Sample]
	diag   *diagnostic.DiagnosticService
	logger customlog.Logger
}

// NewIngestor creates an ingestor writing to out. diag may be nil.
func NewIngestor(out slot.Sink[Sample], diag *diagnostic.DiagnosticService, logger customlog.Logger) *Ingestor {
	return &Ingestor{
		out:    out,
		diag:   diag,
		logger: logger,
	}
}

// OnEvent handles one EVENT from the telemetry subscription. Publishers send
// the field map either as keyword arguments or as the first positional one.
func (i *Ingestor) OnEvent(ev *wamp.Event) {
	if len(ev.Kwargs) > 0 {
		i.OnTelemetry(ev.Kwargs)
		return
	}
	if len(ev.Args) > 0 {
		if fields, ok := wamp.AsDict(ev.Args[0]); ok {
			i.OnTelemetry(fields)
			return
		}
	}

	i.logger.Errorf("Telemetry event %d carries no field map, discarding", ev.Publication)
	i.discarded()
}

// OnTelemetry extracts position and heading from fields. A message missing
// any of them is logged and dropped without touching the slot.
func (i *Ingestor) OnTelemetry(fields map[string]interface{}) {
	sample, err := ParseSample(fields)
	if err != nil {
		i.logger.Errorf("Discarding telemetry: %v", err)
		i.discarded()
		return
	}

	i.out.Put(sample)
	if i.diag != nil {
		i.diag.RecordTelemetry()
	}
}

func (i *Ingestor) discarded() {
	if i.diag != nil {
		i.diag.RecordTelemetryDiscarded()
	}
}

// ParseSample reads the three required numeric fields
func ParseSample(fields map[string]interface{}) (Sample, error) {
	lat, err := number(fields, KeyLatitude)
	if err != nil {
		return Sample{}, err
	}
	lng, err := number(fields, KeyLongitude)
	if err != nil {
		return Sample{}, err
	}
	heading, err := number(fields, KeyHeading)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Latitude: lat, Longitude: lng, Heading: heading}, nil
}

func number(fields map[string]interface{}, key string) (float64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("missing field '%s'", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("field '%s' is not a number: %v", key, v)
}
