package rides

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ridetrack/internal/models"
)

var ErrNotFound = errors.New("rides: not found")

// Ride is the slim view of a ride record that tracking needs. The ride
// service owns the full record.
type Ride struct {
	ID       string            `json:"id"`
	DriverID string            `json:"driver_id"`
	Status   models.RideStatus `json:"status"`
	Pickup   *models.GeoPoint  `json:"pickup,omitempty"`
	Dropoff  *models.GeoPoint  `json:"dropoff,omitempty"`
}

type Booking struct {
	ID          string `json:"id"`
	RideID      string `json:"ride_id"`
	PassengerID string `json:"passenger_id"`
	Status      string `json:"status"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client talks to the ride service that owns rides and bookings.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) GetRide(ctx context.Context, rideID string) (*Ride, error) {
	var ride Ride
	if err := c.do(ctx, http.MethodGet, "/rides/"+rideID, nil, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

func (c *Client) GetBooking(ctx context.Context, bookingID string) (*Booking, error) {
	var booking Booking
	if err := c.do(ctx, http.MethodGet, "/bookings/"+bookingID, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) CancelRide(ctx context.Context, rideID, reason string) error {
	payload := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/rides/"+rideID+"/cancel", payload, nil)
}

func (c *Client) DeleteRide(ctx context.Context, rideID string) error {
	return c.do(ctx, http.MethodDelete, "/rides/"+rideID, nil, nil)
}

// RideForBooking resolves a booking to its ride so a passenger join
// lands on the right tracking channel.
func (c *Client) RideForBooking(ctx context.Context, bookingID string) (string, error) {
	booking, err := c.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if booking.RideID == "" {
		return "", fmt.Errorf("booking %s has no ride: %w", bookingID, ErrNotFound)
	}
	return booking.RideID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ride service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ride service returned %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("ride service rejected request: %s", env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
