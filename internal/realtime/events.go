package realtime

import (
	"encoding/json"
	"time"
)

// Topic names. Membership lives only in the hub and is lost on restart;
// clients reestablish subscriptions on reconnect.
const (
	TopicOccupancyUpdates   = "occupancy-updates"
	TopicReservationUpdates = "reservation-updates"
)

// ClassroomTopic returns the per-classroom topic name.
func ClassroomTopic(classroomID string) string {
	return "classroom-" + classroomID
}

// UserTopic returns a user's private topic name.
func UserTopic(userID string) string {
	return "user-" + userID
}

// Inbound event names (client to server).
const (
	eventPing                    = "ping"
	eventRegisterUser            = "register-user"
	eventAuthenticate            = "authenticate"
	eventJoinClassroom           = "join-classroom"
	eventLeaveClassroom          = "leave-classroom"
	eventSubscribeOccupancy      = "subscribe-occupancy-updates"
	eventUnsubscribeOccupancy    = "unsubscribe-occupancy-updates"
	eventSubscribeReservations   = "subscribe-reservation-updates"
	eventUnsubscribeReservations = "unsubscribe-reservation-updates"
)

// Outbound event names (server to client).
const (
	EventOccupancyChanged          = "occupancy-changed"
	EventClassroomOccupancyChanged = "classroom-occupancy-changed"
	EventReservationChanged        = "reservation-changed"
	EventYourReservationChanged    = "your-reservation-changed"
	EventAvailabilityUpdated       = "availability-updated"
	eventPong                      = "pong"
	eventUserRegistered            = "user-registered"
	eventJoinedClassroom           = "joined-classroom"
)

// envelope is the wire frame for every message in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// serverMessage is an outbound frame before marshaling.
type serverMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// OccupancyChangedPayload is the fixed shape of occupancy-changed and
// classroom-occupancy-changed events.
type OccupancyChangedPayload struct {
	ClassroomID string    `json:"classroomId"`
	IsOccupied  bool      `json:"isOccupied"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReservationChangedPayload is the fixed shape of reservation-changed and
// your-reservation-changed events. The booking system supplies the fields;
// this layer only relays them.
type ReservationChangedPayload struct {
	ReservationID string    `json:"reservationId"`
	ClassroomID   string    `json:"classroomId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// ClassroomAvailability is one classroom entry of an availability broadcast.
type ClassroomAvailability struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName"`
	Block       string `json:"block,omitempty"`
	Floor       int    `json:"floor"`
	IsAvailable bool   `json:"isAvailable"`
	Status      string `json:"status"`
}

// AvailabilityUpdatedPayload is the fixed shape of availability-updated events.
type AvailabilityUpdatedPayload struct {
	Classrooms []ClassroomAvailability `json:"classrooms"`
	Timestamp  time.Time               `json:"timestamp"`
}

// pongPayload answers a ping liveness probe.
type pongPayload struct {
	Status       string    `json:"status"`
	Time         time.Time `json:"time"`
	ConnectionID string    `json:"connectionId"`
}

// userRegisteredPayload confirms a register-user request.
type userRegisteredPayload struct {
	Status       string `json:"status"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// joinedClassroomPayload confirms a join-classroom request.
type joinedClassroomPayload struct {
	Status      string `json:"status"`
	ClassroomID string `json:"classroomId"`
	Room        string `json:"room"`
}

// userRef carries the user id of register-user, authenticate, and
// subscribe-reservation-updates requests.
type userRef struct {
	UserID string `json:"userId"`
}
