package model

import "time"

// Reading is one appended sensor measurement (time-series table).
// With TimescaleDB enabled the table becomes a hypertable on timestamp.
type Reading struct {
	SensorCode  string    `gorm:"size:64;not null;index;primaryKey"`
	ClassroomID string    `gorm:"size:36;not null;index:idx_readings_classroom_ts,priority:1"`
	Type        string    `gorm:"size:32;not null;default:occupancy"`
	Value       float64   `gorm:"not null"`
	Timestamp   time.Time `gorm:"not null;primaryKey;index:idx_readings_classroom_ts,priority:2,sort:desc"`
}
