// Package realtime implements the WebSocket fan-out layer: a connection
// registry with dynamic topic membership and best-effort event delivery.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"classroom-occupancy-backend/config"
)

const (
	// writeWait bounds a single write to a client.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before its reads fail.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Hub is the connection registry and fan-out core. All index mutations and
// emit enumerations run under one mutex, so a disconnect is atomic with
// respect to concurrent delivery: once removed, a connection receives nothing.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*client
	topics  map[string]map[string]*client
	running bool

	sendBuf  int
	upgrader websocket.Upgrader
	metrics  *Metrics
}

// client is one live connection. userID and topics are guarded by the hub
// mutex; the send channel decouples fan-out from the socket so one stalled
// subscriber never blocks the others.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	userID string
	topics map[string]struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewHub creates the hub. registry may be nil to disable metrics.
func NewHub(cfg config.RealtimeConfig, registry *prometheus.Registry) *Hub {
	allowedOrigin := cfg.AllowedOrigin
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return &Hub{
		conns:    make(map[string]*client),
		topics:   make(map[string]map[string]*client),
		sendBuf:  cfg.SendBufferSize,
		upgrader: upgrader,
		metrics:  newMetrics(registry),
	}
}

// Start marks the hub as accepting connections and emissions.
func (h *Hub) Start() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	log.Println("realtime hub started")
}

// Stop rejects further emissions and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.running = false
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
	log.Println("realtime hub stopped")
}

// Stats is a snapshot of the hub state.
type Stats struct {
	ClientsCount int       `json:"clientsCount"`
	TopicsCount  int       `json:"topicsCount"`
	Running      bool      `json:"running"`
	Timestamp    time.Time `json:"timestamp"`
}

// Stats returns the current client and topic counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		ClientsCount: len(h.conns),
		TopicsCount:  len(h.topics),
		Running:      h.running,
		Timestamp:    time.Now().UTC(),
	}
}

// HandleWS upgrades an HTTP request and runs the connection until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		http.Error(w, "realtime service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := h.register(conn)
	log.Printf("client connected: %s", c.id)

	go c.writePump()
	c.readPump()
}

// register creates a client for a live socket and adds it to the registry.
func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.sendBuf),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	count := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.connectionsTotal.Inc()
		h.metrics.clientsConnected.Set(float64(count))
	}
	return c
}

// unregister removes a client from every topic and drops its registry entry.
// Safe to call more than once; disconnect races are expected.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, known := h.conns[c.id]; known {
		delete(h.conns, c.id)
		joined := make([]string, 0, len(c.topics))
		for topic := range c.topics {
			joined = append(joined, topic)
		}
		for _, topic := range joined {
			h.removeFromTopicLocked(topic, c)
		}
	}
	count := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.clientsConnected.Set(float64(count))
	}

	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		log.Printf("client disconnected: %s", c.id)
	})
}

// authenticate attaches a user id and joins the private user topic.
// Idempotent for the same id; a different id moves the connection to the new
// user's topic, leaving the previous one.
func (h *Hub) authenticate(c *client, userID string) {
	if userID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c.userID == userID {
		h.addToTopicLocked(UserTopic(userID), c)
		return
	}
	if c.userID != "" {
		h.removeFromTopicLocked(UserTopic(c.userID), c)
	}
	c.userID = userID
	h.addToTopicLocked(UserTopic(userID), c)
}

// joinTopic adds the client to a topic, updating both indices as one step.
func (h *Hub) joinTopic(c *client, topic string) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	h.addToTopicLocked(topic, c)
	h.mu.Unlock()
}

// leaveTopic removes the client from a topic. Leaving a topic that was never
// joined is a no-op.
func (h *Hub) leaveTopic(c *client, topic string) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	h.removeFromTopicLocked(topic, c)
	h.mu.Unlock()
}

// addToTopicLocked and removeFromTopicLocked keep the topic→connections and
// connection→topics indices in agreement; they are the only places either
// index is touched.
func (h *Hub) addToTopicLocked(topic string, c *client) {
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]*client)
		h.topics[topic] = members
	}
	members[c.id] = c
	c.topics[topic] = struct{}{}
}

func (h *Hub) removeFromTopicLocked(topic string, c *client) {
	delete(c.topics, topic)
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

// EmitToTopic pushes an event to every current member of a topic. Membership
// is enumerated at the moment of the call; connections joining afterwards do
// not receive this event. Returns false only when the hub is not running.
func (h *Hub) EmitToTopic(topic, event string, payload any) bool {
	data, ok := h.encode(event, payload)
	if !ok {
		return false
	}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		h.metrics.dropped("hub_not_running")
		return false
	}
	members := make([]*client, 0, len(h.topics[topic]))
	for _, c := range h.topics[topic] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.eventsEmitted.WithLabelValues(event).Inc()
	}
	for _, c := range members {
		c.enqueue(data)
	}
	return true
}

// EmitToUser pushes an event to a user's private topic.
func (h *Hub) EmitToUser(userID, event string, payload any) bool {
	return h.EmitToTopic(UserTopic(userID), event, payload)
}

// BroadcastAll pushes an event to every connected client regardless of
// topic membership.
func (h *Hub) BroadcastAll(event string, payload any) bool {
	data, ok := h.encode(event, payload)
	if !ok {
		return false
	}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		h.metrics.dropped("hub_not_running")
		return false
	}
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.eventsEmitted.WithLabelValues(event).Inc()
	}
	for _, c := range clients {
		c.enqueue(data)
	}
	return true
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(serverMessage{Event: event, Data: payload})
	if err != nil {
		log.Printf("failed to encode %s event: %v", event, err)
		h.metrics.dropped("encode_failure")
		return nil, false
	}
	return data, true
}

// enqueue hands a frame to the client's writer without blocking. A full
// buffer means the subscriber is too slow; the frame is dropped and counted.
func (c *client) enqueue(data []byte) {
	if c.closed.Load() {
		c.hub.metrics.dropped("connection_closed")
		return
	}
	select {
	case c.send <- data:
		if c.hub.metrics != nil {
			c.hub.metrics.eventsDelivered.Inc()
		}
	default:
		c.hub.metrics.dropped("send_buffer_full")
	}
}

// reply sends a direct response frame to this client only.
func (c *client) reply(event string, payload any) {
	data, ok := c.hub.encode(event, payload)
	if !ok {
		return
	}
	c.enqueue(data)
}

// readPump consumes inbound frames until the connection closes, then cleans
// up the registry entry.
func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			// Not a protocol frame; ignore.
			continue
		}
		c.handleMessage(msg)
	}
}

// handleMessage dispatches one inbound protocol frame.
func (c *client) handleMessage(msg envelope) {
	switch msg.Event {
	case eventPing:
		c.reply(eventPong, pongPayload{
			Status:       "success",
			Time:         time.Now().UTC(),
			ConnectionID: c.id,
		})

	case eventRegisterUser, eventAuthenticate:
		var ref userRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.UserID == "" {
			return
		}
		c.hub.authenticate(c, ref.UserID)
		c.reply(eventUserRegistered, userRegisteredPayload{
			Status:       "success",
			UserID:       ref.UserID,
			ConnectionID: c.id,
		})

	case eventJoinClassroom:
		classroomID := decodeString(msg.Data)
		if classroomID == "" {
			return
		}
		room := ClassroomTopic(classroomID)
		c.hub.joinTopic(c, room)
		c.reply(eventJoinedClassroom, joinedClassroomPayload{
			Status:      "success",
			ClassroomID: classroomID,
			Room:        room,
		})

	case eventLeaveClassroom:
		classroomID := decodeString(msg.Data)
		if classroomID == "" {
			return
		}
		c.hub.leaveTopic(c, ClassroomTopic(classroomID))

	case eventSubscribeOccupancy:
		c.hub.joinTopic(c, TopicOccupancyUpdates)

	case eventUnsubscribeOccupancy:
		c.hub.leaveTopic(c, TopicOccupancyUpdates)

	case eventSubscribeReservations:
		if ref := decodeUserRef(msg.Data); ref != "" {
			c.hub.joinTopic(c, UserTopic(ref))
		} else {
			c.hub.joinTopic(c, TopicReservationUpdates)
		}

	case eventUnsubscribeReservations:
		if ref := decodeUserRef(msg.Data); ref != "" {
			c.hub.leaveTopic(c, UserTopic(ref))
		} else {
			c.hub.leaveTopic(c, TopicReservationUpdates)
		}
	}
}

// writePump drains the send channel onto the socket and keeps the connection
// alive with pings. Exits on write failure or disconnect.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// decodeString accepts both a raw JSON string and a bare token, since some
// clients send classroom ids unquoted.
func decodeString(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}

// decodeUserRef extracts a user id from either {"userId": "..."} or a plain
// string payload.
func decodeUserRef(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var ref userRef
	if err := json.Unmarshal(data, &ref); err == nil && ref.UserID != "" {
		return ref.UserID
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return ""
}
