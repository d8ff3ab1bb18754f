package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Classroom represents a monitored room.
type Classroom struct {
	ID        string `gorm:"primaryKey;size:36"`
	FullName  string `gorm:"uniqueIndex;size:64;not null"`
	Block     string `gorm:"size:16"`
	Floor     int
	Number    int
	Capacity  int
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Sensors []Sensor `gorm:"foreignKey:ClassroomID"`
}

// BeforeCreate assigns a UUID when no id was provided.
func (c *Classroom) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
