package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

type fakeConn struct {
	mu      sync.Mutex
	written []Message
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-c.inbound:
		return websocket.TextMessage, frame, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.written...)
}

type fakeDialer struct {
	mu        sync.Mutex
	failFirst int
	failAll   bool
	dials     int
	conns     []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failAll || d.dials <= d.failFirst {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeTimer records requested delays. In sync mode the callback runs
// immediately, otherwise it is queued for fire.
type fakeTimer struct {
	mu      sync.Mutex
	sync    bool
	delays  []time.Duration
	pending []func()
}

func (t *fakeTimer) after(d time.Duration, f func()) func() bool {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	if !t.sync {
		t.pending = append(t.pending, f)
	}
	t.mu.Unlock()
	if t.sync {
		f()
	}
	return func() bool { return true }
}

func (t *fakeTimer) fire() bool {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return false
	}
	f := t.pending[0]
	t.pending = t.pending[1:]
	t.mu.Unlock()
	f()
	return true
}

func (t *fakeTimer) recorded() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

func sampleLocation() location.DeviceLocation {
	return location.DeviceLocation{
		DeviceID:  "device-1",
		Latitude:  -12.0464,
		Longitude: -77.0428,
		Accuracy:  8,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:    location.SourceGPS,
	}
}

func newTestClient(t *testing.T, dialer Dialer, timer *fakeTimer) *WebSocketClient {
	t.Helper()
	c, err := newWebSocketClient(Options{URL: "ws://fleet.test/ws"}, dialer, zerolog.Nop())
	require.NoError(t, err)
	c.after = timer.after
	return c
}

func frame(t *testing.T, msgType string, data any) []byte {
	t.Helper()
	msg, err := NewMessage(msgType, data)
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestEmitter_PanickingListenerDoesNotStopOthers(t *testing.T) {
	var e emitter
	e.logger = zerolog.Nop()

	var got []any
	e.On("x", func(any) { panic("boom") })
	e.On("x", func(p any) { got = append(got, p) })

	assert.NotPanics(t, func() { e.Emit("x", 42) })
	assert.Equal(t, []any{42}, got)
}

func TestEmitter_Off(t *testing.T) {
	var e emitter
	calls := 0
	id := e.On("x", func(any) { calls++ })
	e.Off("x", id)
	e.Off("x", id)
	e.Off("missing", 99)

	e.Emit("x", nil)
	assert.Equal(t, 0, calls)
}

func TestDispatch_UnknownAndInvalidFramesAreDropped(t *testing.T) {
	var b base
	require.NoError(t, b.init(zerolog.Nop(), "", func(Message) error { return nil }))

	called := 0
	b.On("weird_type", func(any) { called++ })
	b.On(TypeVehicleUpdate, func(any) { called++ })

	assert.NotPanics(t, func() {
		b.dispatch([]byte(`{"type":"weird_type","data":{}}`))
		b.dispatch([]byte(`not json`))
		b.dispatch([]byte(`{"type":"vehicle_update"}`))
		b.dispatch([]byte(`{"type":"vehicle_update","data":{"vehicle_id":""}}`))
		b.dispatch([]byte(`{"type":"vehicle_update","data":{"vehicle_id":"v1","location":{"latitude":120,"longitude":0}}}`))
	})
	assert.Equal(t, 0, called)
}

func TestDispatch_ConvertsSpeedsToMetersPerSecond(t *testing.T) {
	var b base
	require.NoError(t, b.init(zerolog.Nop(), "", func(Message) error { return nil }))

	var vehicle VehicleUpdate
	var route RouteUpdate
	b.On(TypeVehicleUpdate, func(p any) { vehicle = p.(VehicleUpdate) })
	b.On(TypeRouteUpdate, func(p any) { route = p.(RouteUpdate) })

	b.dispatch([]byte(`{"type":"vehicle_update","data":{"vehicle_id":"v1","location":{"latitude":-12.05,"longitude":-77.04},"speed":36,"heading":90}}`))
	b.dispatch([]byte(`{"type":"route_update","data":{"route_id":"r1","progress":50,"speed":72}}`))

	assert.Equal(t, "v1", vehicle.VehicleID)
	assert.InDelta(t, 10.0, vehicle.Speed, 1e-9)
	assert.InDelta(t, 20.0, route.Speed, 1e-9)
}

func TestDispatch_DeviceLocationSpeedUnchanged(t *testing.T) {
	var b base
	require.NoError(t, b.init(zerolog.Nop(), "", func(Message) error { return nil }))

	var loc location.DeviceLocation
	b.On(TypeDeviceLocationUpdate, func(p any) { loc = p.(location.DeviceLocation) })
	b.dispatch([]byte(`{"type":"device_location_update","data":{"device_id":"d1","latitude":1,"longitude":2,"speed":3.5}}`))
	require.NotNil(t, loc.Speed)
	assert.InDelta(t, 3.5, *loc.Speed, 1e-9)
}

func TestDispatch_ProtocolMismatchIsLogged(t *testing.T) {
	var buf bytes.Buffer
	var b base
	require.NoError(t, b.init(zerolog.New(&buf), ">=1.0.0, <2.0.0", func(Message) error { return nil }))

	started := 0
	b.On(TypeTrackingSessionStarted, func(any) { started++ })

	b.dispatch([]byte(`{"type":"tracking_session_started","data":{"session_id":"s1","protocol_version":"1.4.0"}}`))
	assert.NotContains(t, buf.String(), "outside the supported range")

	b.dispatch([]byte(`{"type":"tracking_session_started","data":{"session_id":"s2","protocol_version":"2.1.0"}}`))
	assert.Contains(t, buf.String(), "outside the supported range")
	assert.Equal(t, 2, started)
}

func TestBase_InvalidConstraint(t *testing.T) {
	var b base
	assert.Error(t, b.init(zerolog.Nop(), "not a constraint", nil))
}

func TestWebSocketClient_SendWhileClosed(t *testing.T) {
	c := newTestClient(t, &fakeDialer{}, &fakeTimer{})

	msg, err := NewMessage(TypeDeviceLocationUpdate, map[string]any{"device_id": "d1"})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send(msg), ErrNotConnected)
	assert.Equal(t, StateClosed, c.State())
}

func TestWebSocketClient_LinearBackoffThenGiveUp(t *testing.T) {
	dialer := &fakeDialer{failAll: true}
	timer := &fakeTimer{sync: true}
	c := newTestClient(t, dialer, timer)

	var maxReached []any
	disconnects := 0
	c.On(EventMaxReconnectAttemptsReached, func(p any) { maxReached = append(maxReached, p) })
	c.On(EventDisconnected, func(any) { disconnects++ })

	err := c.Connect(context.Background())
	require.Error(t, err)

	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second,
	}, timer.recorded())
	assert.Equal(t, 6, dialer.dialCount())
	assert.Equal(t, []any{5}, maxReached)
	assert.Equal(t, 6, disconnects)
	assert.Equal(t, StateClosed, c.State())
}

func TestWebSocketClient_SuccessfulOpenResetsAttempts(t *testing.T) {
	dialer := &fakeDialer{failFirst: 2}
	timer := &fakeTimer{sync: true}
	c := newTestClient(t, dialer, timer)
	defer c.Close()

	connected := 0
	c.On(EventConnected, func(any) { connected++ })

	require.Error(t, c.Connect(context.Background()))

	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 1, connected)
	assert.Equal(t, 0, c.ReconnectAttempts())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.recorded())
}

func TestWebSocketClient_DedupesAndReplaysSubscriptions(t *testing.T) {
	dialer := &fakeDialer{}
	timer := &fakeTimer{}
	c := newTestClient(t, dialer, timer)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	first := dialer.last()

	require.NoError(t, c.SubscribeToVehicle("v1"))
	require.NoError(t, c.SubscribeToVehicle("v1"))
	require.NoError(t, c.SubscribeToRoute("r1"))
	require.NoError(t, c.UnsubscribeFromTrafficAlerts("lima"))
	require.Len(t, first.sent(), 2)

	require.NoError(t, c.UnsubscribeFromRoute("r1"))
	sent := first.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, TypeUnsubscribe, sent[2].Type)

	// server drops the connection
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return len(timer.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Second, timer.recorded()[0])

	require.True(t, timer.fire())
	second := dialer.last()
	require.NotSame(t, first, second)
	assert.Equal(t, StateOpen, c.State())

	replayed := second.sent()
	require.Len(t, replayed, 1)
	assert.Equal(t, TypeSubscribe, replayed[0].Type)
	var req SubscriptionRequest
	require.NoError(t, json.Unmarshal(replayed[0].Data, &req))
	assert.Equal(t, SubscriptionRequest{Channel: ChannelVehicle, ID: "v1"}, req)
}

func TestWebSocketClient_SubscribeWhileClosedIsReplayed(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestClient(t, dialer, &fakeTimer{})
	defer c.Close()

	require.NoError(t, c.SubscribeToTrafficAlerts("lima"))
	require.NoError(t, c.Connect(context.Background()))

	sent := dialer.last().sent()
	require.Len(t, sent, 1)
	assert.Equal(t, TypeSubscribe, sent[0].Type)
}

func TestWebSocketClient_DeliversInboundMessages(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestClient(t, dialer, &fakeTimer{})
	defer c.Close()

	var mu sync.Mutex
	var alerts []TrafficAlert
	weird := 0
	c.On("weird_type", func(any) { weird++ })
	c.On(TypeTrafficAlert, func(p any) {
		mu.Lock()
		alerts = append(alerts, p.(TrafficAlert))
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	conn := dialer.last()
	conn.inbound <- []byte(`{"type":"weird_type","data":{}}`)
	conn.inbound <- frame(t, TypeTrafficAlert, TrafficAlert{ID: "a1", Type: "accident", Severity: "high"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, weird)
	assert.Equal(t, "a1", alerts[0].ID)
}

func TestWebSocketClient_DisconnectDoesNotReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	timer := &fakeTimer{}
	c := newTestClient(t, dialer, timer)

	disconnected := 0
	c.On(EventDisconnected, func(any) { disconnected++ })

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, disconnected)
	assert.Empty(t, timer.recorded())
	assert.Equal(t, 1, dialer.dialCount())
}

func TestNewWebSocketClient_RequiresURL(t *testing.T) {
	_, err := NewWebSocketClient(Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestLocationForwarder_SendsDeviceLocation(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestClient(t, dialer, &fakeTimer{})
	defer c.Close()

	f := NewLocationForwarder(c)
	assert.ErrorIs(t, f.Forward(context.Background(), sampleLocation()), ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, f.Forward(context.Background(), sampleLocation()))

	sent := dialer.last().sent()
	require.Len(t, sent, 1)
	assert.Equal(t, TypeDeviceLocationUpdate, sent[0].Type)
	assert.Contains(t, string(sent[0].Data), `"device_id":"device-1"`)
}
