package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/internal/observability"
)

// base holds what every Client implementation shares: listeners, the
// subscription set and inbound frame handling.
type base struct {
	emitter
	subs     subscriptions
	protocol *semver.Constraints
	logger   zerolog.Logger
	send     func(Message) error
}

func (b *base) init(logger zerolog.Logger, protocolConstraint string, send func(Message) error) error {
	b.logger = logger
	b.emitter.logger = logger
	b.send = send
	if protocolConstraint != "" {
		c, err := semver.NewConstraint(protocolConstraint)
		if err != nil {
			return fmt.Errorf("invalid protocol constraint %q: %w", protocolConstraint, err)
		}
		b.protocol = c
	}
	return nil
}

// dispatch decodes one inbound frame and emits it under its type. Frames
// that cannot be decoded or carry an unknown type are dropped.
func (b *base) dispatch(frame []byte) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		observability.TransportDropped.WithLabelValues("malformed").Inc()
		b.logger.Warn().Err(err).Msg("Dropping malformed transport frame")
		return
	}

	payload, err := DecodePayload(msg)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, ErrUnknownType) {
			reason = "unknown_type"
		}
		observability.TransportDropped.WithLabelValues(reason).Inc()
		b.logger.Warn().Err(err).Str("type", msg.Type).Msg("Dropping transport message")
		return
	}

	if started, ok := payload.(TrackingSessionStarted); ok {
		b.checkProtocol(started)
	}

	observability.TransportMessages.WithLabelValues(msg.Type).Inc()
	b.Emit(msg.Type, payload)
}

func (b *base) checkProtocol(s TrackingSessionStarted) {
	if b.protocol == nil || s.ProtocolVersion == "" {
		return
	}
	v, err := semver.NewVersion(s.ProtocolVersion)
	if err != nil {
		b.logger.Warn().Err(err).Str("protocol_version", s.ProtocolVersion).Msg("Server sent an unparsable protocol version")
		return
	}
	if !b.protocol.Check(v) {
		b.logger.Warn().
			Str("protocol_version", v.String()).
			Str("supported", b.protocol.String()).
			Msg("Server protocol version is outside the supported range")
	}
}

func (b *base) control(msgType string, key subscriptionKey) error {
	msg, err := NewMessage(msgType, SubscriptionRequest{Channel: key.channel, ID: key.id})
	if err != nil {
		return err
	}
	err = b.send(msg)
	if errors.Is(err, ErrNotConnected) {
		// kept in the set, replayed on the next open
		return nil
	}
	return err
}

func (b *base) subscribe(channel, id string) error {
	key := subscriptionKey{channel: channel, id: id}
	if !b.subs.add(key) {
		b.logger.Debug().Str("channel", channel).Str("id", id).Msg("Already subscribed")
		return nil
	}
	if err := b.control(TypeSubscribe, key); err != nil {
		b.subs.remove(key)
		return err
	}
	return nil
}

func (b *base) unsubscribe(channel, id string) error {
	key := subscriptionKey{channel: channel, id: id}
	if !b.subs.remove(key) {
		return nil
	}
	return b.control(TypeUnsubscribe, key)
}

// resubscribe replays the subscription set after a connection opens.
func (b *base) resubscribe() {
	for _, key := range b.subs.list() {
		if err := b.control(TypeSubscribe, key); err != nil {
			b.logger.Warn().Err(err).Str("channel", key.channel).Str("id", key.id).Msg("Failed to restore subscription")
		}
	}
}

func (b *base) SubscribeToVehicle(vehicleID string) error {
	return b.subscribe(ChannelVehicle, vehicleID)
}

func (b *base) UnsubscribeFromVehicle(vehicleID string) error {
	return b.unsubscribe(ChannelVehicle, vehicleID)
}

func (b *base) SubscribeToRoute(routeID string) error {
	return b.subscribe(ChannelRoute, routeID)
}

func (b *base) UnsubscribeFromRoute(routeID string) error {
	return b.unsubscribe(ChannelRoute, routeID)
}

func (b *base) SubscribeToTrafficAlerts(area string) error {
	return b.subscribe(ChannelTraffic, area)
}

func (b *base) UnsubscribeFromTrafficAlerts(area string) error {
	return b.unsubscribe(ChannelTraffic, area)
}
