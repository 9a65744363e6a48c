package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/internal/observability"
	"github.com/jwichpas/backend-project-admin-sub000/internal/utils"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/mqtt"
)

const (
	defaultPublishTimeout = 10 * time.Second
	defaultForwardQueue   = 64
)

// MQTTLocationForwarder publishes accepted locations to <topic>/<device_id>.
// Publishing happens on a single worker so order is kept and a slow broker
// never blocks the caller; when the queue is full the sample is dropped.
type MQTTLocationForwarder struct {
	topic          string
	qos            byte
	publishTimeout time.Duration
	client         mqtt.MQTTClient
	pool           *utils.WorkerPool
	logger         zerolog.Logger
}

// NewMQTTLocationForwarder creates the forwarder and its worker.
func NewMQTTLocationForwarder(topic string, qos int, client mqtt.MQTTClient, logger zerolog.Logger) *MQTTLocationForwarder {
	return &MQTTLocationForwarder{
		topic:          topic,
		qos:            byte(qos),
		publishTimeout: defaultPublishTimeout,
		client:         client,
		pool:           utils.NewWorkerPool(1, defaultForwardQueue),
		logger:         logger.With().Str("forwarder", "mqtt").Logger(),
	}
}

func (m *MQTTLocationForwarder) Name() string { return "mqtt" }

// Forward queues loc for publishing. Only encoding and queueing errors are
// returned, broker failures are logged by the worker.
func (m *MQTTLocationForwarder) Forward(_ context.Context, loc location.DeviceLocation) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to serialize location: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", m.topic, loc.DeviceID)

	return m.pool.TrySubmit(func() {
		m.publish(topic, payload)
	})
}

func (m *MQTTLocationForwarder) publish(topic string, payload []byte) {
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.publishTimeout) {
		observability.LocationForwardErrors.WithLabelValues(m.Name()).Inc()
		m.logger.Warn().Str("topic", topic).Msg("Timed out publishing location")
		return
	}
	if err := token.Error(); err != nil {
		observability.LocationForwardErrors.WithLabelValues(m.Name()).Inc()
		m.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish location")
		return
	}
	m.logger.Debug().Str("topic", topic).Msg("Location published")
}

// Close drains queued publishes.
func (m *MQTTLocationForwarder) Close() {
	m.pool.Shutdown()
}
