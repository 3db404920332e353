package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"parking-bridge-backend/config"
)

// Client is the HTTP client for the parking data store. Read-path calls run
// behind a circuit breaker so a dead backend does not pile up goroutines;
// the fire-and-forget sensor PUT uses its own short-timeout client and is
// allowed through regardless of breaker state.
type Client struct {
	base      string
	client    *http.Client
	putClient *http.Client
	breaker   *gobreaker.CircuitBreaker
}

// New creates a data store client from configuration.
func New(cfg *config.BackendConfig) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "parking-backend",
		Timeout: time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
	})

	return &Client{
		base: strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{
			Transport: &http.Transport{},
			Timeout:   cfg.RequestTimeout,
		},
		putClient: &http.Client{
			Transport: &http.Transport{}, // keep-alive by default
			Timeout:   cfg.SensorPutTimeout,
		},
		breaker: breaker,
	}
}

// Devices lists all registered Arduino devices.
func (c *Client) Devices(ctx context.Context) ([]ArduinoDevice, error) {
	var devices []ArduinoDevice
	if err := c.getJSON(ctx, "/api/arduino", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// DeviceSensors lists the sensors attached to one device.
func (c *Client) DeviceSensors(ctx context.Context, arduinoID int) ([]Sensor, error) {
	var sensors []Sensor
	path := fmt.Sprintf("/api/arduino/%d/sensors", arduinoID)
	if err := c.getJSON(ctx, path, &sensors); err != nil {
		return nil, err
	}
	return sensors, nil
}

// UpdateSensorRange reports a new distance reading for a sensor. Errors are
// returned for logging only; callers never retry.
func (c *Client) UpdateSensorRange(ctx context.Context, sensorID int, inches int) error {
	body, err := json.Marshal(map[string]any{
		"sensor_range": inches,
		"status":       "working",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/sensor/%d", c.base, sensorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.putClient.Do(req)
	if err != nil {
		return fmt.Errorf("sensor %d update: %w", sensorID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sensor %d update: status %d", sensorID, resp.StatusCode)
	}
	return nil
}

// Availability fetches the slot/hold aggregate.
func (c *Client) Availability(ctx context.Context) (*Availability, error) {
	var av Availability
	if err := c.getJSON(ctx, "/api/hold-payment/availability", &av); err != nil {
		return nil, err
	}
	return &av, nil
}

// ServicesByVehicle looks up service records matching a vehicle type.
func (c *Client) ServicesByVehicle(ctx context.Context, vehicleType string) ([]Service, error) {
	var services []Service
	path := "/api/service/vehicle/" + url.PathEscape(vehicleType)
	if err := c.getJSON(ctx, path, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// CreateUser creates a user keyed by plate number and returns its ID. The
// endpoint is idempotent on plate number: a conflict response that still
// carries the existing user's ID is treated as success.
func (c *Client) CreateUser(ctx context.Context, plateNumber string, serviceID *int) (int, error) {
	payload := map[string]any{
		"plate_number": plateNumber,
		"service_id":   serviceID,
	}

	status, body, err := c.postJSON(ctx, "/api/user", payload)
	if err != nil {
		return 0, err
	}

	var user User
	if decodeErr := unwrapData(body, &user); decodeErr == nil && user.UserID != 0 {
		return user.UserID, nil
	}

	if status >= 400 {
		return 0, fmt.Errorf("user create: %s", apiErrorMessage(status, body))
	}
	return 0, fmt.Errorf("user create: response missing user_id")
}

// CreateHoldPayment creates a hold-payment record for a user.
func (c *Client) CreateHoldPayment(ctx context.Context, userID int, amount float64, paymentMethod string) (*HoldPaymentResult, error) {
	payload := map[string]any{
		"user_id":        userID,
		"amount":         amount,
		"payment_method": paymentMethod,
	}

	status, body, err := c.postJSON(ctx, "/api/hold-payment", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("hold payment create: %s", apiErrorMessage(status, body))
	}

	result := &HoldPaymentResult{}
	if err := unwrapData(body, &result.HoldPayment); err != nil {
		return nil, fmt.Errorf("hold payment create: decode response: %w", err)
	}

	// The create response may include a fresh availability snapshot.
	var wrapper struct {
		Availability *Availability `json:"availability"`
	}
	if json.Unmarshal(body, &wrapper) == nil {
		result.Availability = wrapper.Availability
	}

	return result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("GET %s: read body: %w", path, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("GET %s: %s", path, apiErrorMessage(resp.StatusCode, body))
		}
		if err := unwrapData(body, out); err != nil {
			return nil, fmt.Errorf("GET %s: decode response: %w", path, err)
		}
		return nil, nil
	})
	return err
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (int, []byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(jsonBody))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("POST %s: read body: %w", path, err)
	}
	return resp.StatusCode, body, nil
}

// unwrapData decodes a response body that is either the value itself or the
// value wrapped in a {"data": ...} envelope.
func unwrapData(body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(body, out)
}

// apiErrorMessage extracts the data store's human-readable error message, if
// any, so callers can surface the specific upstream failure.
func apiErrorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fmt.Sprintf("status %d", status)
}
