package state_managers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwichpas/backend-project-admin-sub000/internal/mocks"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

func snapshot(deviceID string, lat float64) location.DeviceLocation {
	speed := 4.2
	return location.DeviceLocation{
		DeviceID:  deviceID,
		UserID:    "user-1",
		Latitude:  lat,
		Longitude: -77.0428,
		Accuracy:  6,
		Speed:     &speed,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:    location.SourceGPS,
		IsOnline:  true,
	}
}

func TestLocationStateManager_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "location_state.json")
	sm := NewLocationStateManager(path, file.NewFileService(), zerolog.Nop())
	ctx := context.Background()

	got, err := sm.LoadLastKnown(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, sm.SaveLastKnown(ctx, snapshot("device-1", -12.0)))
	require.NoError(t, sm.SaveLastKnown(ctx, snapshot("device-2", -13.0)))
	require.NoError(t, sm.SaveLastKnown(ctx, snapshot("device-1", -12.5)))

	got, err = sm.LoadLastKnown(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, -12.5, got.Latitude)
	require.NotNil(t, got.Speed)
	assert.Equal(t, 4.2, *got.Speed)

	states, err := sm.LoadState()
	require.NoError(t, err)
	assert.Len(t, states, 2)
}

func TestLocationStateManager_RequiresDeviceID(t *testing.T) {
	sm := NewLocationStateManager(filepath.Join(t.TempDir(), "s.json"), file.NewFileService(), zerolog.Nop())
	assert.Error(t, sm.SaveLastKnown(context.Background(), location.DeviceLocation{}))
}

func TestRedisLocationStore_RoundTripWithTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	store := NewRedisLocationStore(client, "", time.Hour, zerolog.Nop())
	ctx := context.Background()

	got, err := store.LoadLastKnown(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.SaveLastKnown(ctx, snapshot("device-1", -12.0)))
	assert.True(t, srv.Exists("fleet:location:last:device-1"))
	assert.Equal(t, time.Hour, srv.TTL("fleet:location:last:device-1"))

	got, err = store.LoadLastKnown(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)

	srv.FastForward(2 * time.Hour)
	got, err = store.LoadLastKnown(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisLocationStore_CorruptValue(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	require.NoError(t, srv.Set("fleet:location:last:device-1", "{not json"))
	store := NewRedisLocationStore(client, "", 0, zerolog.Nop())

	_, err := store.LoadLastKnown(context.Background(), "device-1")
	assert.Error(t, err)
}

func TestLocationStateManager_WriteFailure(t *testing.T) {
	files := new(mocks.MockFileOperations)
	files.On("IsFileExists", "state.json").Return(false, nil)
	files.On("WriteJsonFile", "state.json", mock.Anything).Return(errors.New("disk full"))

	sm := NewLocationStateManager("state.json", files, zerolog.Nop())
	err := sm.SaveLastKnown(context.Background(), snapshot("device-1", -12.05))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	files.AssertExpectations(t)
}

func TestLocationStateManager_RejectsMissingDeviceID(t *testing.T) {
	files := new(mocks.MockFileOperations)
	sm := NewLocationStateManager("state.json", files, zerolog.Nop())

	err := sm.SaveLastKnown(context.Background(), location.DeviceLocation{})
	assert.Error(t, err)
	files.AssertNotCalled(t, "WriteJsonFile", mock.Anything, mock.Anything)
}
