package transport

import (
	"context"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

// LocationForwarder publishes accepted device locations through a Client.
type LocationForwarder struct {
	client Client
}

func NewLocationForwarder(client Client) *LocationForwarder {
	return &LocationForwarder{client: client}
}

func (f *LocationForwarder) Name() string { return "transport" }

// Forward sends a device_location_update. ErrNotConnected is returned as is
// so the caller can count the drop.
func (f *LocationForwarder) Forward(_ context.Context, loc location.DeviceLocation) error {
	msg, err := NewMessage(TypeDeviceLocationUpdate, loc)
	if err != nil {
		return err
	}
	return f.client.Send(msg)
}
