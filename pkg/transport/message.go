package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

// Inbound message types.
const (
	TypeVehicleUpdate          = "vehicle_update"
	TypeRouteUpdate            = "route_update"
	TypeRouteCompleted         = "route_completed"
	TypeRouteDeviation         = "route_deviation"
	TypeTrafficAlert           = "traffic_alert"
	TypeTrafficAlertResolved   = "traffic_alert_resolved"
	TypeDeviceLocationUpdate   = "device_location_update"
	TypeTrackingSessionStarted = "tracking_session_started"
	TypeTrackingSessionEnded   = "tracking_session_ended"
)

// Outbound control message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// ErrUnknownType is returned when a frame carries a type no decoder handles.
var ErrUnknownType = errors.New("unknown message type")

// Message is the wire envelope: {"type": "...", "data": {...}}.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into an envelope of the given type.
func NewMessage(msgType string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return Message{Type: msgType, Data: raw}, nil
}

const kmhToMetersPerSecond = 1000.0 / 3600.0

// Coordinates are degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// VehicleUpdate is a live vehicle position. Speed arrives in km/h and is m/s
// once decoded.
type VehicleUpdate struct {
	VehicleID string      `json:"vehicle_id" validate:"required"`
	DriverID  string      `json:"driver_id,omitempty"`
	Location  Coordinates `json:"location"`
	Speed     float64     `json:"speed" validate:"gte=0"`
	Heading   float64     `json:"heading" validate:"gte=0,lt=360"`
	Status    string      `json:"status,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func (v *VehicleUpdate) normalize() { v.Speed *= kmhToMetersPerSecond }

// RouteUpdate reports progress of a vehicle along a planned route.
type RouteUpdate struct {
	RouteID           string      `json:"route_id" validate:"required"`
	VehicleID         string      `json:"vehicle_id"`
	CurrentLocation   Coordinates `json:"current_location"`
	Progress          float64     `json:"progress" validate:"gte=0,lte=100"`
	DistanceRemaining float64     `json:"distance_remaining" validate:"gte=0"` // meters
	TimeRemaining     float64     `json:"time_remaining" validate:"gte=0"`     // seconds
	Speed             float64     `json:"speed" validate:"gte=0"`
	Timestamp         time.Time   `json:"timestamp"`
}

func (r *RouteUpdate) normalize() { r.Speed *= kmhToMetersPerSecond }

// RouteCompleted closes a route.
type RouteCompleted struct {
	RouteID       string    `json:"route_id" validate:"required"`
	VehicleID     string    `json:"vehicle_id"`
	CompletedAt   time.Time `json:"completed_at"`
	TotalDistance float64   `json:"total_distance" validate:"gte=0"` // meters
	TotalDuration float64   `json:"total_duration" validate:"gte=0"` // seconds
}

// RouteDeviation reports a vehicle leaving its planned path.
type RouteDeviation struct {
	RouteID           string      `json:"route_id" validate:"required"`
	VehicleID         string      `json:"vehicle_id"`
	Location          Coordinates `json:"location"`
	DeviationDistance float64     `json:"deviation_distance" validate:"gte=0"` // meters
	Timestamp         time.Time   `json:"timestamp"`
}

// TrafficAlert is an incident near the fleet.
type TrafficAlert struct {
	ID          string      `json:"id" validate:"required"`
	Type        string      `json:"type" validate:"required"`
	Severity    string      `json:"severity" validate:"oneof=low medium high critical"`
	Location    Coordinates `json:"location"`
	Radius      float64     `json:"radius" validate:"gte=0"` // meters
	Description string      `json:"description"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
}

// TrafficAlertResolved removes a previously announced alert.
type TrafficAlertResolved struct {
	AlertID string `json:"alert_id" validate:"required"`
}

// TrackingSessionStarted is sent by the server when it begins recording a device.
type TrackingSessionStarted struct {
	SessionID       string    `json:"session_id" validate:"required"`
	DeviceID        string    `json:"device_id"`
	UserID          string    `json:"user_id"`
	StartedAt       time.Time `json:"started_at"`
	ProtocolVersion string    `json:"protocol_version,omitempty"`
}

// TrackingSessionEnded closes a tracking session.
type TrackingSessionEnded struct {
	SessionID string    `json:"session_id" validate:"required"`
	DeviceID  string    `json:"device_id"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason,omitempty"`
}

// SubscriptionRequest is the payload of subscribe/unsubscribe control messages.
type SubscriptionRequest struct {
	Channel string `json:"channel"`
	ID      string `json:"id"`
}

type normalizer interface{ normalize() }

var validate = validator.New(validator.WithRequiredStructEnabled())

type decoder func(raw json.RawMessage) (any, error)

var decoders = map[string]decoder{
	TypeVehicleUpdate:          decodeAs[VehicleUpdate],
	TypeRouteUpdate:            decodeAs[RouteUpdate],
	TypeRouteCompleted:         decodeAs[RouteCompleted],
	TypeRouteDeviation:         decodeAs[RouteDeviation],
	TypeTrafficAlert:           decodeAs[TrafficAlert],
	TypeTrafficAlertResolved:   decodeAs[TrafficAlertResolved],
	TypeDeviceLocationUpdate:   decodeAs[location.DeviceLocation],
	TypeTrackingSessionStarted: decodeAs[TrackingSessionStarted],
	TypeTrackingSessionEnded:   decodeAs[TrackingSessionEnded],
}

// decodeAs parses and validates a payload, converting units to the
// canonical ones on the way in.
func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if len(raw) == 0 {
		return nil, errors.New("missing data")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if err := validate.Struct(&v); err != nil {
		return nil, err
	}
	if n, ok := any(&v).(normalizer); ok {
		n.normalize()
	}
	return v, nil
}

// DecodePayload returns the typed payload of msg.
func DecodePayload(msg Message) (any, error) {
	dec, ok := decoders[msg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	payload, err := dec(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	return payload, nil
}
