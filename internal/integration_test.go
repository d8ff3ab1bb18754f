package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"classroom-occupancy-backend/config"
	"classroom-occupancy-backend/internal/api"
	"classroom-occupancy-backend/internal/db"
	"classroom-occupancy-backend/internal/model"
	"classroom-occupancy-backend/internal/occupancy"
	"classroom-occupancy-backend/internal/realtime"
	"classroom-occupancy-backend/internal/store"
	"classroom-occupancy-backend/internal/tsdb"
)

const integrationAPIKey = "integration-key"

// wsEnvelope mirrors the wire frame for test-side decoding.
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TestSensorReadingFanOut walks a reading through the whole stack: HTTP
// ingestion, time-series persistence, cache resolution, and WebSocket
// delivery to the right subscribers.
func TestSensorReadingFanOut(t *testing.T) {
	// 1. In-memory database with the production schema.
	testDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()
	require.NoError(t, db.Migrate(testDB))

	registry := store.NewGormStore(testDB)
	require.NoError(t, registry.SeedClassrooms(context.Background(), []string{"A-101", "B-205"}))

	roomA, err := registry.ClassroomByFullName(context.Background(), "A-101")
	require.NoError(t, err)
	roomB, err := registry.ClassroomByFullName(context.Background(), "B-205")
	require.NoError(t, err)
	require.NoError(t, testDB.Create(&model.Sensor{Code: "S1", ClassroomID: roomA.ID}).Error)

	// 2. Realtime hub and occupancy engine wired the way main does it.
	hub := realtime.NewHub(config.RealtimeConfig{SendBufferSize: 16}, nil)
	hub.Start()
	defer hub.Stop()
	notifier := realtime.NewNotifier(hub)

	engine := occupancy.NewEngine(registry, tsdb.NewGormStore(testDB), occupancy.NewCache(0), notifier, nil)
	handler := api.NewHandler(registry, engine, notifier, hub, nil)

	cfg := &config.Config{}
	cfg.Server.IoTAPIKey = integrationAPIKey
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Realtime.Path = "/ws"

	server := httptest.NewServer(api.NewRouter(cfg, handler, nil))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	// 3. Two subscribers: one on classroom A's topic, one on classroom B's.
	subscriberA := dialAndJoin(t, wsURL, roomA.ID)
	subscriberB := dialAndJoin(t, wsURL, roomB.ID)

	// 4. Ingest a reading for classroom A.
	body, _ := json.Marshal(map[string]any{"sensorCode": "S1", "value": 1})
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/iot/sensors/data", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-IoT-API-Key", integrationAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 5. The reading was persisted.
	var count int64
	testDB.Model(&model.Reading{}).Where("classroom_id = ?", roomA.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	// 6. Classroom A's subscriber receives the scoped event.
	msg := readFrame(t, subscriberA)
	require.Equal(t, realtime.EventClassroomOccupancyChanged, msg.Event)

	var payload realtime.OccupancyChangedPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, roomA.ID, payload.ClassroomID)
	assert.True(t, payload.IsOccupied)
	assert.Equal(t, "occupied", payload.Status)

	// 7. Classroom B's subscriber receives nothing.
	require.NoError(t, subscriberB.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var stray wsEnvelope
	assert.Error(t, subscriberB.ReadJSON(&stray), "unexpected event %s for the other classroom", stray.Event)

	// 8. The read API serves the new state from the cache.
	getResp, err := http.Get(server.URL + "/api/iot/occupancy/" + roomA.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var current struct {
		Occupancy occupancy.Status `json:"occupancy"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&current))
	assert.True(t, current.Occupancy.IsOccupied)
	assert.Equal(t, occupancy.SourceSensor, current.Occupancy.Source)
}

// dialAndJoin connects a websocket client and joins a classroom topic,
// waiting for the join acknowledgement so later emissions cannot race it.
func dialAndJoin(t *testing.T, wsURL, classroomID string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	raw, _ := json.Marshal(classroomID)
	require.NoError(t, conn.WriteJSON(wsEnvelope{Event: "join-classroom", Data: raw}))

	ack := readFrame(t, conn)
	require.Equal(t, "joined-classroom", ack.Event)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsEnvelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsEnvelope
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}
