package occupancy

import (
	"context"
	"fmt"
	"log"
	"time"

	"classroom-occupancy-backend/internal/store"
	"classroom-occupancy-backend/internal/tsdb"
)

// Filter values accepted by GetAllClassroomsOccupancy.
const (
	FilterOccupied  = "occupied"
	FilterAvailable = "available"
)

// Notifier pushes occupancy changes to live subscribers. Delivery is
// best-effort: a false return means nobody was notified, never an error.
type Notifier interface {
	NotifyOccupancyChange(classroomID string, status *Status) bool
}

// Alerter receives classroom ids whose state flipped from occupied to
// available, for out-of-band notification channels (web push).
type Alerter interface {
	Dispatch(classroomID string)
}

// Engine consumes raw sensor readings and resolves them into occupancy state:
// persist to the time-series store, overwrite the cache, notify subscribers.
type Engine struct {
	registry store.Store
	tsdb     tsdb.Store
	cache    *Cache
	notifier Notifier
	alerter  Alerter
}

// NewEngine creates the occupancy resolution engine. notifier and alerter may
// be nil; the engine then resolves state without emitting events.
func NewEngine(registry store.Store, ts tsdb.Store, cache *Cache, notifier Notifier, alerter Alerter) *Engine {
	return &Engine{
		registry: registry,
		tsdb:     ts,
		cache:    cache,
		notifier: notifier,
		alerter:  alerter,
	}
}

// ProcessReading resolves a raw reading into an occupancy status. Side
// effects in order: persist the point, overwrite the cache entry, publish the
// occupancy-changed event. A store write failure aborts the whole operation
// and leaves the cache untouched; retries belong to the ingestion boundary.
func (e *Engine) ProcessReading(ctx context.Context, reading SensorReading) (*Status, error) {
	if reading.SensorCode == "" {
		return nil, &ValidationError{Field: "sensorCode", Reason: "is required"}
	}
	if reading.Value == nil {
		return nil, &ValidationError{Field: "value", Reason: "is required"}
	}

	classroomID, err := e.resolveClassroom(ctx, reading)
	if err != nil {
		return nil, err
	}

	timestamp := reading.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	readingType := reading.Type
	if readingType == "" {
		readingType = "occupancy"
	}

	err = e.tsdb.SaveReading(ctx, tsdb.Point{
		SensorCode:  reading.SensorCode,
		ClassroomID: classroomID,
		Type:        readingType,
		Value:       *reading.Value,
		Timestamp:   timestamp,
	})
	if err != nil {
		return nil, err
	}

	status := &Status{
		ClassroomID: classroomID,
		IsOccupied:  *reading.Value > 0,
		LastUpdated: timestamp,
		Source:      SourceSensor,
		Confidence:  1.0,
	}

	previous, hadPrevious := e.cache.Get(classroomID)
	e.cache.Set(status)

	if e.notifier != nil {
		if !e.notifier.NotifyOccupancyChange(classroomID, status) {
			log.Printf("occupancy change for classroom %s not published (realtime hub not running)", classroomID)
		}
	}

	if e.alerter != nil && hadPrevious && previous.IsOccupied && !status.IsOccupied {
		e.alerter.Dispatch(classroomID)
	}

	if err := e.registry.TouchSensorActivity(ctx, reading.SensorCode, timestamp); err != nil {
		// Registry bookkeeping must not fail the reading.
		log.Printf("Warning: could not update sensor activity for %s: %v", reading.SensorCode, err)
	}

	return status, nil
}

// resolveClassroom finds the classroom a reading belongs to: explicit id
// first, then full name, then the sensor's registry entry.
func (e *Engine) resolveClassroom(ctx context.Context, reading SensorReading) (string, error) {
	if reading.ClassroomID != "" {
		if _, err := e.registry.ClassroomByID(ctx, reading.ClassroomID); err != nil {
			return "", &ValidationError{Field: "classroomId", Reason: fmt.Sprintf("%q not found", reading.ClassroomID)}
		}
		return reading.ClassroomID, nil
	}

	if reading.ClassroomFullName != "" {
		classroom, err := e.registry.ClassroomByFullName(ctx, reading.ClassroomFullName)
		if err != nil {
			return "", &ValidationError{Field: "classroomFullName", Reason: fmt.Sprintf("%q not found", reading.ClassroomFullName)}
		}
		return classroom.ID, nil
	}

	sensor, err := e.registry.SensorByCode(ctx, reading.SensorCode)
	if err != nil || sensor.ClassroomID == "" {
		return "", &ValidationError{Field: "classroomId", Reason: "is required (sensor has no classroom association)"}
	}
	return sensor.ClassroomID, nil
}

// GetClassroomOccupancy returns the current status for a classroom. On a
// cache miss the most recent stored reading is consulted and the cache
// populated (read-through). With no reading at all an unknown status with
// zero confidence is returned and not cached.
func (e *Engine) GetClassroomOccupancy(ctx context.Context, classroomID string) (*Status, error) {
	if status, found := e.cache.Get(classroomID); found {
		return status, nil
	}

	latest, err := e.tsdb.QueryLatest(ctx, classroomID, "occupancy")
	if err != nil {
		return nil, err
	}

	if latest == nil {
		return &Status{
			ClassroomID: classroomID,
			IsOccupied:  false,
			Source:      SourceUnknown,
			Confidence:  0,
		}, nil
	}

	status := &Status{
		ClassroomID: classroomID,
		IsOccupied:  latest.Value > 0,
		LastUpdated: latest.Timestamp,
		Source:      SourceSensor,
		Confidence:  1.0,
	}
	e.cache.Set(status)
	return status, nil
}

// GetAllClassroomsOccupancy resolves occupancy for every classroom with an
// active sensor. filter narrows the result to occupied or available rooms.
// Each classroom's state is independent, so this is a plain fan-out.
func (e *Engine) GetAllClassroomsOccupancy(ctx context.Context, filter string) ([]*Status, error) {
	sensors, err := e.registry.ActiveSensors(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(sensors))
	statuses := make([]*Status, 0, len(sensors))
	for _, sensor := range sensors {
		if sensor.ClassroomID == "" {
			continue
		}
		if _, dup := seen[sensor.ClassroomID]; dup {
			continue
		}
		seen[sensor.ClassroomID] = struct{}{}

		status, err := e.GetClassroomOccupancy(ctx, sensor.ClassroomID)
		if err != nil {
			return nil, err
		}

		switch filter {
		case FilterOccupied:
			if !status.IsOccupied {
				continue
			}
		case FilterAvailable:
			if status.IsOccupied {
				continue
			}
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

// GetOccupancyHistory returns the aggregated occupancy history for a
// classroom. Pure delegation to the store's range query; the engine only
// shapes each bucket with its occupied/available label.
func (e *Engine) GetOccupancyHistory(ctx context.Context, classroomID string, from, to time.Time, interval time.Duration) ([]HistoryPoint, error) {
	points, err := e.tsdb.QueryRange(ctx, tsdb.RangeQuery{
		ClassroomID: classroomID,
		Type:        "occupancy",
		From:        from,
		To:          to,
		Aggregation: tsdb.AggregationMean,
		Interval:    interval,
	})
	if err != nil {
		return nil, err
	}

	history := make([]HistoryPoint, 0, len(points))
	for _, p := range points {
		status := FilterAvailable
		if p.Value > 0 {
			status = FilterOccupied
		}
		history = append(history, HistoryPoint{
			Timestamp: p.Timestamp,
			Value:     p.Value,
			Status:    status,
		})
	}
	return history, nil
}
