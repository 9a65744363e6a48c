package location

import "time"

// Source identifies where a sample came from.
type Source string

const (
	SourceGPS     Source = "GPS"
	SourceNetwork Source = "NETWORK"
	SourceManual  Source = "MANUAL"
)

// Position is a raw reading returned by a provider.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters
	Altitude  *float64
	Heading   *float64 // degrees clockwise from true north
	Speed     *float64 // m/s
	Timestamp time.Time
}

// DeviceLocation is one immutable location sample of this device. A newer
// sample supersedes it, it is never edited in place.
type DeviceLocation struct {
	DeviceID     string    `json:"device_id" validate:"required"`
	UserID       string    `json:"user_id"`
	Latitude     float64   `json:"latitude" validate:"latitude"`
	Longitude    float64   `json:"longitude" validate:"longitude"`
	Accuracy     float64   `json:"accuracy"`
	Altitude     *float64  `json:"altitude,omitempty"`
	Heading      *float64  `json:"heading,omitempty"`
	Speed        *float64  `json:"speed,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Source       Source    `json:"source" validate:"omitempty,oneof=GPS NETWORK MANUAL"`
	BatteryLevel *float64  `json:"battery_level,omitempty"`
	IsOnline     bool      `json:"is_online"`
}

// PositionOptions tunes a single read or a watch.
type PositionOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration
}

const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWatchTimeout = 15 * time.Second
)

// PermissionState mirrors the platform permission query result.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// PermissionStatus is the flattened form handed to callers.
type PermissionStatus struct {
	Granted bool `json:"granted"`
	Denied  bool `json:"denied"`
	Prompt  bool `json:"prompt"`
}

// StatusOf converts a state into its flag form.
func StatusOf(state PermissionState) PermissionStatus {
	return PermissionStatus{
		Granted: state == PermissionGranted,
		Denied:  state == PermissionDenied,
		Prompt:  state == PermissionPrompt,
	}
}
