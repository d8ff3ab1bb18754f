package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"classroom-occupancy-backend/internal/occupancy"
	"classroom-occupancy-backend/internal/realtime"
	"classroom-occupancy-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	engine   *occupancy.Engine
	notifier *realtime.Notifier
	hub      *realtime.Hub
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, engine *occupancy.Engine, notifier *realtime.Notifier, hub *realtime.Hub, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:    s,
		engine:   engine,
		notifier: notifier,
		hub:      hub,
		webpush:  webpushOptions,
	}
}
