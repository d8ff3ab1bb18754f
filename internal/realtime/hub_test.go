package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-occupancy-backend/config"
	"classroom-occupancy-backend/internal/occupancy"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	hub := NewHub(config.RealtimeConfig{SendBufferSize: 16}, nil)
	hub.Start()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})
	return hub, server
}

func dialTestHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(envelope{Event: event, Data: raw}))
}

// readEvent blocks until the next frame arrives or the deadline passes.
func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg envelope
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func assertNoEvent(t *testing.T, conn *websocket.Conn) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var msg envelope
	err := conn.ReadJSON(&msg)
	assert.Error(t, err, "expected no frame, got %s", msg.Event)
}

// waitForMembers polls until a topic has the wanted member count. Inbound
// frames are handled by the read pump goroutine, so membership is eventual.
func waitForMembers(t *testing.T, hub *Hub, topic string, want int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		got := len(hub.topics[topic])
		hub.mu.RUnlock()
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("topic %s never reached %d members", topic, want)
}

func TestHub_PingPong(t *testing.T) {
	_, server := newTestHub(t)
	conn := dialTestHub(t, server)

	sendEvent(t, conn, eventPing, nil)

	msg := readEvent(t, conn)
	assert.Equal(t, eventPong, msg.Event)

	var pong pongPayload
	require.NoError(t, json.Unmarshal(msg.Data, &pong))
	assert.Equal(t, "success", pong.Status)
	assert.NotEmpty(t, pong.ConnectionID)
}

func TestHub_TopicSubscription(t *testing.T) {
	hub, server := newTestHub(t)
	subscriber := dialTestHub(t, server)
	bystander := dialTestHub(t, server)

	sendEvent(t, subscriber, eventSubscribeOccupancy, nil)
	waitForMembers(t, hub, TopicOccupancyUpdates, 1)

	ok := hub.EmitToTopic(TopicOccupancyUpdates, EventOccupancyChanged, map[string]string{"classroomId": "c-1"})
	assert.True(t, ok)

	msg := readEvent(t, subscriber)
	assert.Equal(t, EventOccupancyChanged, msg.Event)

	// The unsubscribed connection must see nothing.
	assertNoEvent(t, bystander)
}

func TestHub_JoinAndLeaveClassroom(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dialTestHub(t, server)

	sendEvent(t, conn, eventJoinClassroom, "c-1")

	msg := readEvent(t, conn)
	require.Equal(t, eventJoinedClassroom, msg.Event)
	var joined joinedClassroomPayload
	require.NoError(t, json.Unmarshal(msg.Data, &joined))
	assert.Equal(t, "c-1", joined.ClassroomID)
	assert.Equal(t, ClassroomTopic("c-1"), joined.Room)

	hub.EmitToTopic(ClassroomTopic("c-1"), EventClassroomOccupancyChanged, nil)
	msg = readEvent(t, conn)
	assert.Equal(t, EventClassroomOccupancyChanged, msg.Event)

	sendEvent(t, conn, eventLeaveClassroom, "c-1")
	waitForMembers(t, hub, ClassroomTopic("c-1"), 0)

	hub.EmitToTopic(ClassroomTopic("c-1"), EventClassroomOccupancyChanged, nil)
	assertNoEvent(t, conn)
}

func TestHub_LeaveWithoutJoinIsNoop(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dialTestHub(t, server)

	sendEvent(t, conn, eventLeaveClassroom, "never-joined")
	sendEvent(t, conn, eventPing, nil)

	// The connection still works afterwards.
	msg := readEvent(t, conn)
	assert.Equal(t, eventPong, msg.Event)
	assert.Equal(t, 1, hub.Stats().ClientsCount)
}

func TestHub_AuthenticateAndEmitToUser(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dialTestHub(t, server)

	sendEvent(t, conn, eventRegisterUser, userRef{UserID: "u-1"})

	msg := readEvent(t, conn)
	require.Equal(t, eventUserRegistered, msg.Event)
	var registered userRegisteredPayload
	require.NoError(t, json.Unmarshal(msg.Data, &registered))
	assert.Equal(t, "u-1", registered.UserID)

	hub.EmitToUser("u-1", EventYourReservationChanged, nil)
	msg = readEvent(t, conn)
	assert.Equal(t, EventYourReservationChanged, msg.Event)

	// Re-authenticating as the same user is idempotent.
	sendEvent(t, conn, eventAuthenticate, userRef{UserID: "u-1"})
	readEvent(t, conn) // user-registered ack
	waitForMembers(t, hub, UserTopic("u-1"), 1)

	// A different user id moves the connection off the old topic.
	sendEvent(t, conn, eventAuthenticate, userRef{UserID: "u-2"})
	readEvent(t, conn) // user-registered ack
	waitForMembers(t, hub, UserTopic("u-2"), 1)
	waitForMembers(t, hub, UserTopic("u-1"), 0)

	hub.EmitToUser("u-1", EventYourReservationChanged, nil)
	assertNoEvent(t, conn)
}

func TestHub_ReservationSubscriptions(t *testing.T) {
	hub, server := newTestHub(t)
	general := dialTestHub(t, server)
	private := dialTestHub(t, server)

	sendEvent(t, general, eventSubscribeReservations, nil)
	sendEvent(t, private, eventSubscribeReservations, userRef{UserID: "u-9"})
	waitForMembers(t, hub, TopicReservationUpdates, 1)
	waitForMembers(t, hub, UserTopic("u-9"), 1)

	hub.EmitToUser("u-9", EventYourReservationChanged, nil)
	msg := readEvent(t, private)
	assert.Equal(t, EventYourReservationChanged, msg.Event)

	hub.EmitToTopic(TopicReservationUpdates, EventReservationChanged, nil)
	msg = readEvent(t, general)
	assert.Equal(t, EventReservationChanged, msg.Event)

	// The general event must not reach the user-scoped subscriber.
	assertNoEvent(t, private)
}

func TestHub_EmitWithNoSubscribersStillSucceeds(t *testing.T) {
	hub, _ := newTestHub(t)

	ok := hub.EmitToTopic("classroom-empty", EventClassroomOccupancyChanged, nil)
	assert.True(t, ok, "zero subscribers is not a failure")
}

func TestHub_EmitWhenStopped(t *testing.T) {
	hub := NewHub(config.RealtimeConfig{SendBufferSize: 16}, nil)

	ok := hub.EmitToTopic(TopicOccupancyUpdates, EventOccupancyChanged, nil)
	assert.False(t, ok, "a hub that is not running cannot deliver")
	assert.False(t, hub.BroadcastAll(EventAvailabilityUpdated, nil))
}

func TestHub_DisconnectCleansUpIndices(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dialTestHub(t, server)

	sendEvent(t, conn, eventSubscribeOccupancy, nil)
	sendEvent(t, conn, eventJoinClassroom, "c-1")
	readEvent(t, conn) // joined-classroom ack
	waitForMembers(t, hub, TopicOccupancyUpdates, 1)

	require.NoError(t, conn.Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.Stats().ClientsCount > 0 {
		time.Sleep(5 * time.Millisecond)
	}

	stats := hub.Stats()
	assert.Equal(t, 0, stats.ClientsCount)
	assert.Equal(t, 0, stats.TopicsCount, "empty topics are dropped with their last member")

	// Emitting after the disconnect reaches nobody and still succeeds.
	assert.True(t, hub.EmitToTopic(TopicOccupancyUpdates, EventOccupancyChanged, nil))
}

func TestNotifier_DoublePublish(t *testing.T) {
	hub, server := newTestHub(t)
	notifier := NewNotifier(hub)

	global := dialTestHub(t, server)
	scoped := dialTestHub(t, server)

	sendEvent(t, global, eventSubscribeOccupancy, nil)
	sendEvent(t, scoped, eventJoinClassroom, "c-1")
	readEvent(t, scoped) // joined-classroom ack
	waitForMembers(t, hub, TopicOccupancyUpdates, 1)
	waitForMembers(t, hub, ClassroomTopic("c-1"), 1)

	ok := notifier.NotifyOccupancyChange("c-1", &occupancy.Status{
		ClassroomID: "c-1",
		IsOccupied:  true,
		LastUpdated: time.Now().UTC(),
		Source:      occupancy.SourceSensor,
		Confidence:  1,
	})
	assert.True(t, ok)

	msg := readEvent(t, global)
	assert.Equal(t, EventOccupancyChanged, msg.Event)
	var payload OccupancyChangedPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "c-1", payload.ClassroomID)
	assert.True(t, payload.IsOccupied)
	assert.Equal(t, "occupied", payload.Status)

	msg = readEvent(t, scoped)
	assert.Equal(t, EventClassroomOccupancyChanged, msg.Event)
}

func TestNotifier_ReservationChangeDefaultsTimestamp(t *testing.T) {
	hub, server := newTestHub(t)
	notifier := NewNotifier(hub)

	conn := dialTestHub(t, server)
	sendEvent(t, conn, eventSubscribeReservations, nil)
	waitForMembers(t, hub, TopicReservationUpdates, 1)

	notifier.NotifyReservationChange(ReservationChangedPayload{
		ReservationID: "r-1",
		Status:        "cancelled",
	})

	msg := readEvent(t, conn)
	require.Equal(t, EventReservationChanged, msg.Event)
	var payload ReservationChangedPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "r-1", payload.ReservationID)
	assert.False(t, payload.Timestamp.IsZero())
}
