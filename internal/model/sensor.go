package model

import "time"

// Sensor status values as stored in the registry.
const (
	SensorStatusActive      = "active"
	SensorStatusInactive    = "inactive"
	SensorStatusMaintenance = "maintenance"
)

// Sensor represents a physical occupancy sensor installed in a classroom.
type Sensor struct {
	ID          int64  `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;size:64;not null"`
	ClassroomID string `gorm:"index;size:36;not null"`
	Type        string `gorm:"size:32;not null;default:occupancy"`
	Status      string `gorm:"size:16;not null;default:active"`
	LastActive  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Classroom Classroom `gorm:"constraint:OnDelete:CASCADE"`
}
