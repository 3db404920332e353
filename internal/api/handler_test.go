package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-bridge-backend/internal/backend"
	"parking-bridge-backend/internal/ingest"
	"parking-bridge-backend/internal/mapping"
	"parking-bridge-backend/internal/reservation"
)

type mockReadings struct {
	latest ingest.LatestReadings
}

func (m *mockReadings) Latest() ingest.LatestReadings { return m.latest }

type mockRefresher struct {
	RefreshFunc func(ctx context.Context) map[string]mapping.DeviceMapping
}

func (m *mockRefresher) Refresh(ctx context.Context) map[string]mapping.DeviceMapping {
	return m.RefreshFunc(ctx)
}

type mockEngine struct {
	AvailabilityFunc func(ctx context.Context) (*backend.Availability, error)
	SubmitFunc       func(ctx context.Context, req reservation.SubmissionRequest) (*reservation.SubmissionResult, error)
}

func (m *mockEngine) Availability(ctx context.Context) (*backend.Availability, error) {
	return m.AvailabilityFunc(ctx)
}

func (m *mockEngine) Submit(ctx context.Context, req reservation.SubmissionRequest) (*reservation.SubmissionResult, error) {
	return m.SubmitFunc(ctx, req)
}

func setupRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/sensor", handler.GetLatestReadings)
	r.GET("/api/refresh-mapping", handler.RefreshMapping)
	r.GET("/api/availability", handler.GetAvailability)
	r.POST("/api/reservation", handler.PostReservation)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.GET("/api/vapid_public_key", handler.GetVAPIDPublicKey)
	return r
}

func TestGetLatestReadings(t *testing.T) {
	one, seven := 7, 25
	readings := &mockReadings{latest: ingest.LatestReadings{Sensor1In: &one, Sensor2In: &seven}}
	router := setupRouter(NewHandler(nil, nil, readings, nil, nil))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/sensor", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sensor1In": 7, "sensor2In": 25}`, w.Body.String())
}

func TestRefreshMapping(t *testing.T) {
	refresher := &mockRefresher{
		RefreshFunc: func(ctx context.Context) map[string]mapping.DeviceMapping {
			return map[string]mapping.DeviceMapping{
				"192.168.1.50": {ArduinoID: 1, Location: "Lot A", Sensor1ID: 7, Sensor2ID: 25},
			}
		},
	}
	router := setupRouter(NewHandler(nil, nil, nil, refresher, nil))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/refresh-mapping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"192.168.1.50": {"arduinoId": 1, "location": "Lot A", "sensor1Id": 7, "sensor2Id": 25}}`, w.Body.String())
}

func TestGetAvailability(t *testing.T) {
	engine := &mockEngine{
		AvailabilityFunc: func(ctx context.Context) (*backend.Availability, error) {
			return &backend.Availability{AvailableSlots: 4, PendingHolds: 1, AvailableForHolding: 3}, nil
		},
	}
	router := setupRouter(NewHandler(nil, nil, nil, nil, engine))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/availability", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var av backend.Availability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &av))
	assert.Equal(t, 3, av.AvailableForHolding)
}

func TestGetAvailability_BackendDown(t *testing.T) {
	engine := &mockEngine{
		AvailabilityFunc: func(ctx context.Context) (*backend.Availability, error) {
			return nil, assert.AnError
		},
	}
	router := setupRouter(NewHandler(nil, nil, nil, nil, engine))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/availability", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPostReservation(t *testing.T) {
	var gotReq reservation.SubmissionRequest
	engine := &mockEngine{
		SubmitFunc: func(ctx context.Context, req reservation.SubmissionRequest) (*reservation.SubmissionResult, error) {
			gotReq = req
			return &reservation.SubmissionResult{UserID: 42, HoldPaymentID: 9, Amount: 30}, nil
		},
	}
	router := setupRouter(NewHandler(nil, nil, nil, nil, engine))

	body := `{"plate_number": "ABC-123", "vehicle_type": "car", "payment_method": "cash"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/reservation", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ABC-123", gotReq.PlateNumber)
	assert.Equal(t, "car", gotReq.VehicleType)
	assert.Equal(t, "cash", gotReq.PaymentMethod)

	var result reservation.SubmissionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 42, result.UserID)
	assert.Equal(t, 9, result.HoldPaymentID)
}

func TestPostReservation_MissingFields(t *testing.T) {
	router := setupRouter(NewHandler(nil, nil, nil, nil, &mockEngine{}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/reservation", strings.NewReader(`{"plate_number": "ABC-123"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostReservation_NoCapacity(t *testing.T) {
	engine := &mockEngine{
		SubmitFunc: func(ctx context.Context, req reservation.SubmissionRequest) (*reservation.SubmissionResult, error) {
			return nil, reservation.ErrNoCapacity
		},
	}
	router := setupRouter(NewHandler(nil, nil, nil, nil, engine))

	body := `{"plate_number": "ABC-123", "payment_method": "cash"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/reservation", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPutSubscription_PushNotConfigured(t *testing.T) {
	router := setupRouter(NewHandler(nil, nil, nil, nil, nil))

	body := `{"endpoint": "https://example.com/push", "p256dh": "key", "auth": "auth"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetVAPIDPublicKey_NotConfigured(t *testing.T) {
	router := setupRouter(NewHandler(nil, nil, nil, nil, nil))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/vapid_public_key", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
