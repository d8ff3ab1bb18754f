package realtime

import (
	"time"

	"classroom-occupancy-backend/internal/occupancy"
)

// Notifier translates domain events into typed WebSocket emissions. Every
// method is best-effort: business state never depends on whether anyone was
// listening, so failures are counted, not returned as errors.
type Notifier struct {
	hub *Hub
}

// NewNotifier creates a notifier bound to a hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// NotifyOccupancyChange double-publishes a status change: once to the global
// occupancy topic for dashboard-wide subscribers, once to the classroom's own
// topic for detail views. Both emissions carry the same payload.
func (n *Notifier) NotifyOccupancyChange(classroomID string, status *occupancy.Status) bool {
	payload := OccupancyChangedPayload{
		ClassroomID: classroomID,
		IsOccupied:  status.IsOccupied,
		Status:      status.Label(),
		LastUpdated: status.LastUpdated,
		Source:      status.Source,
		Confidence:  status.Confidence,
		Timestamp:   time.Now().UTC(),
	}

	global := n.hub.EmitToTopic(TopicOccupancyUpdates, EventOccupancyChanged, payload)
	scoped := n.hub.EmitToTopic(ClassroomTopic(classroomID), EventClassroomOccupancyChanged, payload)
	return global && scoped
}

// NotifyReservationChange publishes to the general reservation topic and,
// when the event names a user, privately to that user's topic under the
// distinct your-reservation-changed event name.
func (n *Notifier) NotifyReservationChange(payload ReservationChangedPayload) bool {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	ok := n.hub.EmitToTopic(TopicReservationUpdates, EventReservationChanged, payload)
	if payload.UserID != "" {
		ok = n.hub.EmitToUser(payload.UserID, EventYourReservationChanged, payload) && ok
	}
	return ok
}

// NotifyAvailabilityUpdate broadcasts the availability snapshot to every
// connection; availability is public information with no subscription gating.
func (n *Notifier) NotifyAvailabilityUpdate(classrooms []ClassroomAvailability) bool {
	return n.hub.BroadcastAll(EventAvailabilityUpdated, AvailabilityUpdatedPayload{
		Classrooms: classrooms,
		Timestamp:  time.Now().UTC(),
	})
}
