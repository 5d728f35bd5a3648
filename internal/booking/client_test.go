package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/paddledesk/internal/model"
)

func TestListBookings(t *testing.T) {
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/bookings", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]model.Booking{ //nolint:errcheck
			{ID: 1, Status: model.StatusBooked, PlannedStartTime: start, DurationInHours: 1.5, ClientName: "Ana"},
		})
	}))
	defer srv.Close()

	bookings, err := NewClient(srv.URL+"/", "tok").ListBookings(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, int64(1), bookings[0].ID)
	assert.Equal(t, model.StatusBooked, bookings[0].Status)
	assert.True(t, start.Equal(bookings[0].PlannedStartTime))
	assert.Equal(t, 90*time.Minute, bookings[0].Duration())
}

func TestUpdateBookingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/bookings/42", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PENDING_CONFIRMATION", body["status"])

		json.NewEncoder(w).Encode(model.Booking{ID: 42, Status: model.StatusPendingConfirmation}) //nolint:errcheck
	}))
	defer srv.Close()

	b, err := NewClient(srv.URL, "").UpdateBookingStatus(context.Background(), 42, model.StatusPendingConfirmation)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingConfirmation, b.Status)
}

func TestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid transition"}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok").UpdateBookingStatus(context.Background(), 1, model.StatusNoShow)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.False(t, IsStatus(err, http.StatusNotFound))
	assert.True(t, strings.Contains(err.Error(), "invalid transition"), err.Error())
}

func TestCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, "tok").ListBookings(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
