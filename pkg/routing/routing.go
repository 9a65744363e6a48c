package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	http_utils "github.com/jwichpas/backend-project-admin-sub000/pkg/httpUtils"
)

const (
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultProfile = "driving-car"
	defaultTimeout = 15 * time.Second
)

// ErrNoRoute is returned when the service answers without any route.
var ErrNoRoute = errors.New("no route found")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Options for one directions request.
type Options struct {
	Profile    string
	Preference string // fastest, shortest, recommended
}

// Route is a directions result. Distance is meters, duration seconds.
type Route struct {
	Distance float64
	Duration time.Duration
	Geometry []Point
}

// Router computes routes between two points.
type Router interface {
	Directions(ctx context.Context, from, to Point, opts Options) (Route, error)
}

// Client is an OpenRouteService style directions client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

var _ Router = (*Client)(nil)

func NewClient(baseURL, apiKey string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("routing api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.With().Str("component", "routing").Logger(),
	}, nil
}

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
	Preference  string       `json:"preference,omitempty"`
	Units       string       `json:"units"`
	Geometry    bool         `json:"geometry"`
}

type directionsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Directions asks for a route. Coordinates go out as [lon, lat] and the
// geometry comes back converted to lat/lon points.
func (c *Client) Directions(ctx context.Context, from, to Point, opts Options) (Route, error) {
	profile := opts.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	data, err := http_utils.DoJSON(ctx, c.http, http_utils.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/v2/directions/%s", c.baseURL, profile),
		Header: http.Header{"Authorization": []string{c.apiKey}},
		Body: directionsRequest{
			Coordinates: [][2]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}},
			Preference:  opts.Preference,
			Units:       "m",
			Geometry:    true,
		},
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("profile", profile).Msg("Directions request failed")
		return Route{}, err
	}

	var resp directionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Route{}, fmt.Errorf("decode directions: %w", err)
	}
	if len(resp.Routes) == 0 {
		return Route{}, ErrNoRoute
	}

	r := resp.Routes[0]
	route := Route{
		Distance: r.Summary.Distance,
		Duration: time.Duration(r.Summary.Duration * float64(time.Second)),
		Geometry: make([]Point, 0, len(r.Geometry.Coordinates)),
	}
	for _, pair := range r.Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		route.Geometry = append(route.Geometry, Point{Lat: pair[1], Lon: pair[0]})
	}
	return route, nil
}
