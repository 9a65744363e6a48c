package location

import (
	"context"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client  *maps.Client // Maps API client for making geolocation requests
	apiKey  string
	scanner *networkScanner
	logger  zerolog.Logger
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:  c,
		apiKey:  apiKey,
		scanner: newNetworkScanner(),
		logger:  logger,
	}, nil
}

func (g *GoogleGeolocationProvider) Source() Source { return SourceNetwork }

func (g *GoogleGeolocationProvider) Close() error { return nil }

// Permission is granted as long as an API key is configured.
func (g *GoogleGeolocationProvider) Permission(_ context.Context) (PermissionState, error) {
	if g.apiKey == "" {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

// GetLocation retrieves the device's location using Google Maps Geolocation API.
// Nearby WiFi access points and cell towers are attached when the host can
// list them; otherwise the lookup falls back to the public IP.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Position, error) {
	req := &maps.GeolocationRequest{ConsiderIP: true}

	if aps, err := g.scanner.wifiAccessPoints(ctx); err != nil {
		g.logger.Debug().Err(err).Msg("WiFi scan unavailable")
	} else {
		req.WiFiAccessPoints = aps
	}

	if towers, err := g.scanner.cellTowers(ctx, 0); err != nil {
		g.logger.Debug().Err(err).Msg("Cell tower scan unavailable")
	} else {
		req.CellTowers = towers
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Position{}, err
	}

	return Position{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Timestamp: timeNow(),
	}, nil
}
