package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classroom-occupancy-backend/internal/model"
	"classroom-occupancy-backend/internal/parse"
)

// ErrNotFound is returned when a sensor or classroom does not exist.
var ErrNotFound = errors.New("not found")

// sensorActivityWindow throttles last_active writes: a sensor row is only
// touched when this much time has passed since the previous update.
const sensorActivityWindow = 5 * time.Minute

// Store defines the registry operations for classrooms and sensors.
type Store interface {
	DB() *gorm.DB
	SensorByCode(ctx context.Context, code string) (*model.Sensor, error)
	ActiveSensors(ctx context.Context) ([]model.Sensor, error)
	Classrooms(ctx context.Context) ([]model.Classroom, error)
	ClassroomByID(ctx context.Context, id string) (*model.Classroom, error)
	ClassroomByFullName(ctx context.Context, fullName string) (*model.Classroom, error)
	TouchSensorActivity(ctx context.Context, code string, at time.Time) error
	SeedClassrooms(ctx context.Context, fullNames []string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// SensorByCode looks up a sensor by its unique code.
func (s *gormStore) SensorByCode(ctx context.Context, code string) (*model.Sensor, error) {
	var sensor model.Sensor
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&sensor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("sensor %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sensor %q: %w", code, err)
	}
	return &sensor, nil
}

// ActiveSensors returns every sensor currently marked active, with its classroom.
func (s *gormStore) ActiveSensors(ctx context.Context) ([]model.Sensor, error) {
	var sensors []model.Sensor
	err := s.db.WithContext(ctx).
		Preload("Classroom").
		Where("status = ?", model.SensorStatusActive).
		Find(&sensors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active sensors: %w", err)
	}
	return sensors, nil
}

// Classrooms returns every registered classroom ordered by full name.
func (s *gormStore) Classrooms(ctx context.Context) ([]model.Classroom, error) {
	var classrooms []model.Classroom
	err := s.db.WithContext(ctx).Order("full_name asc").Find(&classrooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch classrooms: %w", err)
	}
	return classrooms, nil
}

// ClassroomByID looks up a classroom by primary key.
func (s *gormStore) ClassroomByID(ctx context.Context, id string) (*model.Classroom, error) {
	var classroom model.Classroom
	err := s.db.WithContext(ctx).First(&classroom, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("classroom %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch classroom %q: %w", id, err)
	}
	return &classroom, nil
}

// ClassroomByFullName resolves a classroom by its human-readable full name.
func (s *gormStore) ClassroomByFullName(ctx context.Context, fullName string) (*model.Classroom, error) {
	var classroom model.Classroom
	err := s.db.WithContext(ctx).Where("full_name = ?", fullName).First(&classroom).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("classroom %q: %w", fullName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch classroom %q: %w", fullName, err)
	}
	return &classroom, nil
}

// TouchSensorActivity records that a sensor reported in, marking it active.
// Writes are throttled to once per activity window to keep ingestion cheap.
func (s *gormStore) TouchSensorActivity(ctx context.Context, code string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Sensor{}).
		Where("code = ?", code).
		Where("last_active IS NULL OR last_active < ?", at.Add(-sensorActivityWindow)).
		Updates(map[string]any{
			"last_active": at,
			"status":      model.SensorStatusActive,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update sensor activity for %q: %w", code, res.Error)
	}
	return nil
}

// SeedClassrooms upserts classroom rows for the configured full names.
// Names that cannot be parsed are skipped with a warning.
func (s *gormStore) SeedClassrooms(ctx context.Context, fullNames []string) error {
	var classrooms []model.Classroom
	for _, fullName := range fullNames {
		parsed, err := parse.ParseFullName(fullName)
		if err != nil {
			log.Printf("Warning: skipping classroom seed %q: %v", fullName, err)
			continue
		}
		classrooms = append(classrooms, model.Classroom{
			FullName: fullName,
			Block:    parsed.Block,
			Floor:    parsed.Floor,
			Number:   parsed.Number,
		})
	}

	if len(classrooms) == 0 {
		return nil
	}

	log.Printf("Seeding %d classrooms...", len(classrooms))
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "full_name"}},
		DoNothing: true,
	}).Create(&classrooms).Error
	if err != nil {
		return fmt.Errorf("seed classrooms failed: %w", err)
	}
	return nil
}
