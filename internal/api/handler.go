package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"parking-bridge-backend/internal/backend"
	"parking-bridge-backend/internal/ingest"
	"parking-bridge-backend/internal/mapping"
	"parking-bridge-backend/internal/reservation"
	"parking-bridge-backend/internal/store"
)

// ReadingsSource yields the last raw readings per channel.
type ReadingsSource interface {
	Latest() ingest.LatestReadings
}

// MappingRefresher triggers a synchronous mapping rebuild.
type MappingRefresher interface {
	Refresh(ctx context.Context) map[string]mapping.DeviceMapping
}

// ReservationEngine gates and runs reservation submissions.
type ReservationEngine interface {
	Availability(ctx context.Context) (*backend.Availability, error)
	Submit(ctx context.Context, req reservation.SubmissionRequest) (*reservation.SubmissionResult, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	webpush  *webpush.Options
	readings ReadingsSource
	resolver MappingRefresher
	engine   ReservationEngine
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, webpushOptions *webpush.Options, readings ReadingsSource, resolver MappingRefresher, engine ReservationEngine) *Handler {
	return &Handler{
		store:    s,
		webpush:  webpushOptions,
		readings: readings,
		resolver: resolver,
		engine:   engine,
	}
}
