package location

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ggaFix   = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	ggaNoFix = "$GPGGA,123520,,,,,0,00,,,M,,M,,*61"
	rmcValid = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
)

func sensorWith(data string) *DeviceSensorProvider {
	d := NewDeviceSensorProvider("/dev/null", 9600)
	d.open = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(data)), nil
	}
	return d
}

func TestDeviceSensorProvider_GetLocation_GGAAndRMC(t *testing.T) {
	d := sensorWith(strings.Join([]string{"$GPGSV,garbage", ggaNoFix, ggaFix, rmcValid}, "\r\n"))

	pos, err := d.GetLocation(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 48.1173, pos.Latitude, 1e-4)
	assert.InDelta(t, 11.516667, pos.Longitude, 1e-4)
	assert.Equal(t, 0.9, pos.Accuracy)
	require.NotNil(t, pos.Altitude)
	assert.Equal(t, 545.4, *pos.Altitude)
	require.NotNil(t, pos.Speed)
	assert.InDelta(t, 22.4*0.514444, *pos.Speed, 1e-6)
	require.NotNil(t, pos.Heading)
	assert.Equal(t, 84.4, *pos.Heading)
	assert.Equal(t, SourceGPS, d.Source())
}

func TestDeviceSensorProvider_GetLocation_GGAOnly(t *testing.T) {
	d := sensorWith(ggaFix + "\r\n")

	pos, err := d.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pos.Speed)
	assert.InDelta(t, 48.1173, pos.Latitude, 1e-4)
}

func TestDeviceSensorProvider_GetLocation_NoFix(t *testing.T) {
	d := sensorWith(ggaNoFix + "\r\n")

	_, err := d.GetLocation(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFix)
}

func TestDeviceSensorProvider_GetLocation_PermissionDenied(t *testing.T) {
	d := NewDeviceSensorProvider("/dev/ttyUSB0", 9600)
	d.open = func() (io.ReadCloser, error) { return nil, os.ErrPermission }

	_, err := d.GetLocation(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

// blockingReader never returns data until closed.
type blockingReader struct{ closed chan struct{} }

func (b *blockingReader) Read(_ []byte) (int, error) {
	<-b.closed
	return 0, io.EOF
}

func (b *blockingReader) Close() error {
	close(b.closed)
	return nil
}

func TestDeviceSensorProvider_GetLocation_ContextTimeout(t *testing.T) {
	d := NewDeviceSensorProvider("/dev/ttyUSB0", 9600)
	d.open = func() (io.ReadCloser, error) { return &blockingReader{closed: make(chan struct{})}, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.GetLocation(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNetworkScanner_WiFiAccessPoints(t *testing.T) {
	n := &networkScanner{run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
		assert.Equal(t, "nmcli", name)
		return []byte("AA\\:BB\\:CC\\:DD\\:EE\\:FF:72\nnot-a-mac:10\n11\\:22\\:33\\:44\\:55\\:66:40\n"), nil
	}}

	aps, err := n.wifiAccessPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", aps[0].MACAddress)
	assert.Equal(t, 72.0, aps[0].SignalStrength)
	assert.Equal(t, "11:22:33:44:55:66", aps[1].MACAddress)
}

func TestNetworkScanner_CellTowers(t *testing.T) {
	n := &networkScanner{run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
		return []byte("modem.3gpp.operator-code : 71610\nmodem.3gpp.location-area-code : 00A1\nmodem.3gpp.cell-id : 01B2C3\n"), nil
	}}

	towers, err := n.cellTowers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, towers, 1)
	assert.Equal(t, 716, towers[0].MobileCountryCode)
	assert.Equal(t, 10, towers[0].MobileNetworkCode)
	assert.Equal(t, 0xA1, towers[0].LocationAreaCode)
	assert.Equal(t, 0x01B2C3, towers[0].CellID)
}

func TestIsValidMAC(t *testing.T) {
	assert.True(t, isValidMAC("00:14:22:01:23:45"))
	assert.True(t, isValidMAC("ff:ff:ff:ff:ff:ff"))
	assert.False(t, isValidMAC("00:14:22:01:23"))
	assert.False(t, isValidMAC("zz:14:22:01:23:45"))
}
