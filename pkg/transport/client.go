package transport

import (
	"context"
	"errors"
	"sync"
)

// Local events emitted next to the message types.
const (
	EventConnected                   = "connected"
	EventDisconnected                = "disconnected"
	EventMaxReconnectAttemptsReached = "maxReconnectAttemptsReached"
)

// ConnectionState of a transport client.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
)

// ErrNotConnected is returned by Send while the connection is not open. The
// message is dropped, there is no outbound queue.
var ErrNotConnected = errors.New("transport is not connected")

// Client is one logical duplex connection delivering typed events to local
// listeners.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Close() error
	State() ConnectionState
	Send(msg Message) error

	On(event string, fn Listener) ListenerID
	Off(event string, id ListenerID)

	SubscribeToVehicle(vehicleID string) error
	UnsubscribeFromVehicle(vehicleID string) error
	SubscribeToRoute(routeID string) error
	UnsubscribeFromRoute(routeID string) error
	SubscribeToTrafficAlerts(area string) error
	UnsubscribeFromTrafficAlerts(area string) error
}

// Subscription channels.
const (
	ChannelVehicle = "vehicle"
	ChannelRoute   = "route"
	ChannelTraffic = "traffic"
)

type subscriptionKey struct {
	channel string
	id      string
}

// subscriptions is the set of server-side subscriptions this client wants.
// Repeated subscribe/unsubscribe calls are deduplicated here and the whole
// set is replayed after every (re)connect.
type subscriptions struct {
	mu     sync.Mutex
	active map[subscriptionKey]struct{}
	order  []subscriptionKey
}

func (s *subscriptions) add(key subscriptionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		s.active = make(map[subscriptionKey]struct{})
	}
	if _, ok := s.active[key]; ok {
		return false
	}
	s.active[key] = struct{}{}
	s.order = append(s.order, key)
	return true
}

func (s *subscriptions) remove(key subscriptionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[key]; !ok {
		return false
	}
	delete(s.active, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *subscriptions) list() []subscriptionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]subscriptionKey(nil), s.order...)
}

func (s *subscriptions) ids(channel string) []string {
	var out []string
	for _, k := range s.list() {
		if k.channel == channel {
			out = append(out, k.id)
		}
	}
	return out
}
