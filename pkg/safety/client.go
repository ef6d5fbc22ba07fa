package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ridetrack/internal/models"
)

// Client talks to the external safety service that owns emergency
// alerts. The tracking subsystem only triggers and cancels; dispatch
// to responders happens server-side.
type Client interface {
	TriggerAlert(ctx context.Context, req *TriggerRequest) (*models.EmergencyAlert, error)
	CancelAlert(ctx context.Context, alertID string, reason string) error
}

type TriggerRequest struct {
	Type        models.AlertType `json:"type"`
	BookingID   string           `json:"booking_id,omitempty"`
	Location    *models.GeoPoint `json:"location,omitempty"`
	Description string           `json:"description,omitempty"`
}

type triggerResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Emergency struct {
		ID     string             `json:"id"`
		Status models.AlertStatus `json:"status"`
	} `json:"emergency"`
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) TriggerAlert(ctx context.Context, req *TriggerRequest) (*models.EmergencyAlert, error) {
	var out triggerResponse
	if err := c.post(ctx, "/sos/trigger", req, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Emergency.ID == "" {
		return nil, fmt.Errorf("safety service rejected alert: %s", out.Message)
	}

	alert := &models.EmergencyAlert{
		ID:          out.Emergency.ID,
		TriggeredAt: time.Now().UnixMilli(),
		Location:    req.Location,
		BookingID:   req.BookingID,
		Status:      out.Emergency.Status,
		Description: req.Description,
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusActive
	}
	return alert, nil
}

func (c *HTTPClient) CancelAlert(ctx context.Context, alertID string, reason string) error {
	payload := map[string]string{"reason": reason}
	return c.post(ctx, fmt.Sprintf("/sos/%s/cancel", alertID), payload, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("safety service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("safety service returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
