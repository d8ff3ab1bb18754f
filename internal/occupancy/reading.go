package occupancy

import (
	"fmt"
	"time"
)

// Occupancy status provenance tags.
const (
	SourceSensor   = "sensor"
	SourceSchedule = "schedule"
	SourceManual   = "manual"
	SourceUnknown  = "unknown"
)

// ValidationError reports a reading that is missing required fields. The
// reading is discarded; nothing is persisted or cached.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sensor reading: %s %s", e.Field, e.Reason)
}

// SensorReading is one raw inbound sensor message. Immutable once constructed.
// The classroom may be referenced by id, by full name, or implicitly through
// the sensor's registry entry.
type SensorReading struct {
	SensorCode        string
	ClassroomID       string
	ClassroomFullName string
	Type              string
	Value             *float64
	Timestamp         time.Time
}

// Status is the resolved, cached belief about whether a classroom currently
// has people in it. One instance per classroom; each resolution replaces it
// wholesale.
type Status struct {
	ClassroomID string    `json:"classroomId"`
	IsOccupied  bool      `json:"isOccupied"`
	LastUpdated time.Time `json:"lastUpdated"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
}

// Label returns the human-readable availability label for API payloads.
func (s *Status) Label() string {
	if s.IsOccupied {
		return "occupied"
	}
	return "available"
}

// HistoryPoint is one aggregated bucket of a classroom's occupancy history.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Status    string    `json:"status"`
}
