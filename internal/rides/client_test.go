package rides

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRideForBookingResolvesRide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bookings/B9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"data":{"id":"B9","ride_id":"R3","status":"confirmed"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	rideID, err := c.RideForBooking(context.Background(), "B9")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if rideID != "R3" {
		t.Fatalf("expected R3, got %s", rideID)
	}
}

func TestUnknownBookingIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.RideForBooking(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"id":"R3","driver_id":"D1","status":"on_way_to_pickup"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ride, err := c.GetRide(context.Background(), "R3")
	if err != nil {
		t.Fatalf("get ride failed: %v", err)
	}
	if ride.DriverID != "D1" {
		t.Fatalf("unexpected ride: %+v", ride)
	}
}

func TestStaticDirectory(t *testing.T) {
	d := NewStaticDirectory()
	d.Bind("B1", "R1")

	rideID, err := d.RideForBooking(context.Background(), "B1")
	if err != nil || rideID != "R1" {
		t.Fatalf("expected R1, got %s (%v)", rideID, err)
	}
	if _, err := d.RideForBooking(context.Background(), "B2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
