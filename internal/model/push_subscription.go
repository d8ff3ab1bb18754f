package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers pick the classrooms they want availability alerts for.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Classrooms []*Classroom `gorm:"many2many:subscription_classroom_mapping;"`
}
