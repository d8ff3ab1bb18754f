package availability

import (
	"context"
	"log"
	"time"

	"classroom-occupancy-backend/config"
	"classroom-occupancy-backend/internal/occupancy"
	"classroom-occupancy-backend/internal/realtime"
	"classroom-occupancy-backend/internal/store"
)

// Broadcaster periodically pushes an availability snapshot of every
// registered classroom to all connected clients.
type Broadcaster struct {
	cfg      config.AvailabilityConfig
	registry store.Store
	engine   *occupancy.Engine
	notifier *realtime.Notifier
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(cfg config.AvailabilityConfig, registry store.Store, engine *occupancy.Engine, notifier *realtime.Notifier) *Broadcaster {
	return &Broadcaster{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		notifier: notifier,
	}
}

// Run starts the broadcast loop.
func (b *Broadcaster) Run(ctx context.Context) {
	if !b.cfg.Enabled {
		log.Println("Availability broadcaster is disabled. Not starting.")
		return
	}
	log.Println("Starting availability broadcaster...")

	b.BroadcastOnce(ctx)

	timer := time.NewTimer(b.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Availability broadcaster shutting down.")
			return
		case <-timer.C:
			b.BroadcastOnce(ctx)
			timer.Reset(b.cfg.Interval)
		}
	}
}

// BroadcastOnce computes the availability snapshot and emits it. A classroom
// with no resolvable state is reported as available with unknown status.
func (b *Broadcaster) BroadcastOnce(ctx context.Context) {
	classrooms, err := b.registry.Classrooms(ctx)
	if err != nil {
		log.Printf("Error fetching classrooms for availability broadcast: %v", err)
		return
	}
	if len(classrooms) == 0 {
		return
	}

	snapshot := make([]realtime.ClassroomAvailability, 0, len(classrooms))
	for _, classroom := range classrooms {
		entry := realtime.ClassroomAvailability{
			ID:          classroom.ID,
			FullName:    classroom.FullName,
			Block:       classroom.Block,
			Floor:       classroom.Floor,
			IsAvailable: true,
			Status:      "unknown",
		}

		status, err := b.engine.GetClassroomOccupancy(ctx, classroom.ID)
		if err != nil {
			log.Printf("Error resolving occupancy for classroom %s: %v", classroom.ID, err)
		} else if status.Source != occupancy.SourceUnknown {
			entry.IsAvailable = !status.IsOccupied
			entry.Status = status.Label()
		}

		snapshot = append(snapshot, entry)
	}

	if !b.notifier.NotifyAvailabilityUpdate(snapshot) {
		log.Println("Availability snapshot not published (realtime hub not running).")
	}
}
