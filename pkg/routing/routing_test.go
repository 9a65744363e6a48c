package routing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	http_utils "github.com/jwichpas/backend-project-admin-sub000/pkg/httpUtils"
)

func TestClient_Directions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/directions/driving-hgv", r.URL.Path)
		assert.Equal(t, "ors-key", r.Header.Get("Authorization"))

		var req directionsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, [][2]float64{{-77.0428, -12.0464}, {-71.9675, -13.5320}}, req.Coordinates)
		assert.Equal(t, "fastest", req.Preference)
		assert.Equal(t, "m", req.Units)

		_, _ = w.Write([]byte(`{"routes":[{"summary":{"distance":1105000.5,"duration":72000},
			"geometry":{"coordinates":[[-77.0428,-12.0464],[-75.0,-12.5],[-71.9675,-13.532]]}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "ors-key", zerolog.Nop())
	require.NoError(t, err)

	route, err := c.Directions(context.Background(),
		Point{Lat: -12.0464, Lon: -77.0428}, Point{Lat: -13.5320, Lon: -71.9675},
		Options{Profile: "driving-hgv", Preference: "fastest"})
	require.NoError(t, err)

	assert.Equal(t, 1105000.5, route.Distance)
	assert.Equal(t, 20*time.Hour, route.Duration)
	require.Len(t, route.Geometry, 3)
	assert.Equal(t, Point{Lat: -12.5, Lon: -75.0}, route.Geometry[1])
}

func TestClient_NoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "k", zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Directions(context.Background(), Point{}, Point{Lat: 1, Lon: 1}, Options{})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "k", zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Directions(context.Background(), Point{}, Point{Lat: 1, Lon: 1}, Options{})
	var se *http_utils.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("", "", zerolog.Nop())
	assert.Error(t, err)
}
