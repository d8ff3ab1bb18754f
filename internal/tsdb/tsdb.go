// Package tsdb is the time-series store for sensor readings. It exposes the
// narrow save/query contract the occupancy engine depends on; everything else
// about persistence (schema, hypertables) stays behind it.
package tsdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"classroom-occupancy-backend/internal/model"
)

// Aggregation functions supported by QueryRange.
const (
	AggregationMean = "mean"
	AggregationMax  = "max"
	AggregationLast = "last"
)

// Point is one sensor measurement as stored in the time-series table.
type Point struct {
	SensorCode  string
	ClassroomID string
	Type        string
	Value       float64
	Timestamp   time.Time
}

// RangeQuery describes an aggregated range lookup.
type RangeQuery struct {
	ClassroomID string
	Type        string
	From        time.Time
	To          time.Time
	Aggregation string
	Interval    time.Duration
}

// AggregatedPoint is one bucket of a range query result.
type AggregatedPoint struct {
	Timestamp time.Time
	Value     float64
}

// StoreWriteError wraps a failed append to the time-series store.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("time-series store write failed (%s): %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Store defines the save/query contract for sensor reading persistence.
type Store interface {
	SaveReading(ctx context.Context, p Point) error
	QueryRange(ctx context.Context, q RangeQuery) ([]AggregatedPoint, error)
	QueryLatest(ctx context.Context, classroomID, readingType string) (*Point, error)
}

// gormStore implements Store on a GORM-managed readings table.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed time-series store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// SaveReading appends one point. Failures are reported as *StoreWriteError.
func (s *gormStore) SaveReading(ctx context.Context, p Point) error {
	if p.Type == "" {
		p.Type = "occupancy"
	}
	reading := model.Reading{
		SensorCode:  p.SensorCode,
		ClassroomID: p.ClassroomID,
		Type:        p.Type,
		Value:       p.Value,
		Timestamp:   p.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&reading).Error; err != nil {
		return &StoreWriteError{Op: "save reading", Err: err}
	}
	return nil
}

// QueryRange returns readings in [From, To) aggregated into Interval-sized
// buckets. Buckets are aligned to From; empty buckets are omitted, so an
// empty result is not an error. Aggregation happens in Go rather than SQL so
// the same path runs on Postgres and on the SQLite databases used in tests.
func (s *gormStore) QueryRange(ctx context.Context, q RangeQuery) ([]AggregatedPoint, error) {
	if q.Interval <= 0 {
		q.Interval = 5 * time.Minute
	}
	if q.Aggregation == "" {
		q.Aggregation = AggregationMean
	}

	var readings []model.Reading
	err := s.db.WithContext(ctx).
		Where("classroom_id = ? AND type = ? AND timestamp >= ? AND timestamp < ?",
			q.ClassroomID, q.Type, q.From, q.To).
		Order("timestamp ASC").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query readings range: %w", err)
	}

	if len(readings) == 0 {
		return []AggregatedPoint{}, nil
	}

	return bucketize(readings, q.From, q.Interval, q.Aggregation), nil
}

// QueryLatest returns the single most recent point, or nil when no reading exists.
func (s *gormStore) QueryLatest(ctx context.Context, classroomID, readingType string) (*Point, error) {
	var reading model.Reading
	err := s.db.WithContext(ctx).
		Where("classroom_id = ? AND type = ?", classroomID, readingType).
		Order("timestamp DESC").
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reading: %w", err)
	}

	return &Point{
		SensorCode:  reading.SensorCode,
		ClassroomID: reading.ClassroomID,
		Type:        reading.Type,
		Value:       reading.Value,
		Timestamp:   reading.Timestamp,
	}, nil
}

// bucketize folds time-ordered readings into aggregation buckets aligned to start.
func bucketize(readings []model.Reading, start time.Time, interval time.Duration, aggregation string) []AggregatedPoint {
	type bucket struct {
		ts    time.Time
		sum   float64
		max   float64
		last  float64
		count int
	}

	var buckets []bucket
	for _, r := range readings {
		ts := start.Add(r.Timestamp.Sub(start).Truncate(interval))
		if len(buckets) == 0 || !buckets[len(buckets)-1].ts.Equal(ts) {
			buckets = append(buckets, bucket{ts: ts})
		}
		b := &buckets[len(buckets)-1]
		b.sum += r.Value
		if b.count == 0 || r.Value > b.max {
			b.max = r.Value
		}
		b.last = r.Value
		b.count++
	}

	points := make([]AggregatedPoint, 0, len(buckets))
	for _, b := range buckets {
		var value float64
		switch aggregation {
		case AggregationMax:
			value = b.max
		case AggregationLast:
			value = b.last
		default:
			value = b.sum / float64(b.count)
		}
		points = append(points, AggregatedPoint{Timestamp: b.ts, Value: value})
	}
	return points
}
