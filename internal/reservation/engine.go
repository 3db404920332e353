package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"parking-bridge-backend/internal/backend"
)

// ErrNoCapacity gates reservation submission when every available slot is
// already claimed by a pending hold.
var ErrNoCapacity = errors.New("no parking slots available for holding")

// Backend is the slice of the data store client the engine needs.
type Backend interface {
	Availability(ctx context.Context) (*backend.Availability, error)
	ServicesByVehicle(ctx context.Context, vehicleType string) ([]backend.Service, error)
	CreateUser(ctx context.Context, plateNumber string, serviceID *int) (int, error)
	CreateHoldPayment(ctx context.Context, userID int, amount float64, paymentMethod string) (*backend.HoldPaymentResult, error)
}

// Engine answers how many more reservation holds can be accepted and runs
// the two-step submission flow. The capacity gate here is advisory and
// point-in-time; the data store owns the authoritative check.
type Engine struct {
	store      Backend
	holdAmount float64
}

// NewEngine creates an engine charging the configured hold amount.
func NewEngine(store Backend, holdAmount float64) *Engine {
	return &Engine{store: store, holdAmount: holdAmount}
}

// AvailableForHolding is the number of slots still open to new holds:
// available slots minus pending holds, floored at zero.
func AvailableForHolding(av *backend.Availability) int {
	n := av.AvailableSlots - av.PendingHolds
	if n < 0 {
		return 0
	}
	return n
}

// Availability fetches the slot/hold aggregate. The derived count is
// recomputed locally so the gate never depends on the collaborator filling
// the field in.
func (e *Engine) Availability(ctx context.Context) (*backend.Availability, error) {
	av, err := e.store.Availability(ctx)
	if err != nil {
		return nil, err
	}
	av.AvailableForHolding = AvailableForHolding(av)
	return av, nil
}

// SubmissionRequest is one reservation attempt.
type SubmissionRequest struct {
	PlateNumber   string
	VehicleType   string
	PaymentMethod string
}

// SubmissionResult reports a created hold and, when obtainable, the updated
// availability to present to the user.
type SubmissionResult struct {
	UserID        int                   `json:"userId"`
	HoldPaymentID int                   `json:"holdPaymentId"`
	ServiceID     *int                  `json:"serviceId"`
	Amount        float64               `json:"amount"`
	Availability  *backend.Availability `json:"availability,omitempty"`
}

// Submit runs the reservation flow: capacity gate, best-effort service
// lookup, user creation (a duplicate plate resolves to the existing user),
// hold-payment creation, availability re-fetch. Each step's failure carries
// a step-specific message; nothing already written is rolled back.
func (e *Engine) Submit(ctx context.Context, req SubmissionRequest) (*SubmissionResult, error) {
	av, err := e.Availability(ctx)
	if err != nil {
		return nil, fmt.Errorf("availability check failed: %w", err)
	}
	if av.AvailableForHolding <= 0 {
		return nil, ErrNoCapacity
	}

	serviceID := e.lookupService(ctx, req.VehicleType)

	userID, err := e.store.CreateUser(ctx, req.PlateNumber, serviceID)
	if err != nil {
		return nil, fmt.Errorf("user registration failed: %w", err)
	}

	hold, err := e.store.CreateHoldPayment(ctx, userID, e.holdAmount, req.PaymentMethod)
	if err != nil {
		// The user record stays behind; a user without a hold is a valid,
		// reconciled state.
		return nil, fmt.Errorf("hold payment failed: %w", err)
	}

	result := &SubmissionResult{
		UserID:        userID,
		HoldPaymentID: hold.HoldPayment.HoldPaymentID,
		ServiceID:     serviceID,
		Amount:        e.holdAmount,
		Availability:  hold.Availability,
	}

	if result.Availability == nil {
		refreshed, err := e.Availability(ctx)
		if err != nil {
			log.Printf("availability refresh after hold creation failed: %v", err)
		} else {
			result.Availability = refreshed
		}
	} else {
		result.Availability.AvailableForHolding = AvailableForHolding(result.Availability)
	}

	return result, nil
}

// lookupService resolves a vehicle type to a service ID. Best effort: any
// failure or empty match yields nil.
func (e *Engine) lookupService(ctx context.Context, vehicleType string) *int {
	if vehicleType == "" {
		return nil
	}
	services, err := e.store.ServicesByVehicle(ctx, vehicleType)
	if err != nil {
		log.Printf("service lookup for vehicle type %q failed: %v", vehicleType, err)
		return nil
	}
	if len(services) == 0 {
		return nil
	}
	id := services[0].ServiceID
	return &id
}
