package stores

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/transport"
)

func TestVehicleStore_LoadAndViews(t *testing.T) {
	rest, db := newFakeRest(t)
	rest.respond("vehicles", `[
		{"id":"v1","plate":"ABC-123","status":"in_transit","is_active":true},
		{"id":"v2","plate":"DEF-456","status":"available","is_active":true},
		{"id":"v3","plate":"GHI-789","status":"inactive","is_active":false}
	]`)
	s := NewVehicleStore(db, Options{}, zerolog.Nop())

	vehicles, err := s.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, vehicles, 3)
	assert.Equal(t, "company_id=eq.c1&order=plate.asc", rest.calls()[0].Query)

	assert.Len(t, s.Active(), 2)
	available := s.ByStatus(VehicleAvailable)
	require.Len(t, available, 1)
	assert.Equal(t, "v2", available[0].ID)
	assert.NoError(t, s.Err())
}

func TestVehicleStore_CreateUpdateDelete(t *testing.T) {
	rest, db := newFakeRest(t)
	s := NewVehicleStore(db, Options{}, zerolog.Nop())

	v, err := s.Create(context.Background(), Vehicle{Plate: "ABC-123", Brand: "Volvo"})
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, VehicleAvailable, v.Status)

	_, err = s.Create(context.Background(), Vehicle{Plate: "abc-123"})
	assert.ErrorIs(t, err, ErrDuplicatePlate)

	rest.respond("vehicles", `[{"id":"`+v.ID+`","plate":"ABC-123","brand":"Scania","status":"available","is_active":true}]`)
	v.Brand = "Scania"
	updated, err := s.Update(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "Scania", updated.Brand)

	require.NoError(t, s.Delete(context.Background(), v.ID))
	got, ok := s.Get(v.ID)
	require.True(t, ok)
	assert.False(t, got.IsActive)
	assert.Equal(t, VehicleInactive, got.Status)
	assert.Empty(t, s.Active())
}

func TestVehicleStore_FailedWriteLeavesCache(t *testing.T) {
	rest, db := newFakeRest(t)
	s := NewVehicleStore(db, Options{}, zerolog.Nop())
	v, err := s.Create(context.Background(), Vehicle{Plate: "ABC-123"})
	require.NoError(t, err)

	rest.fail(http.StatusForbidden, `{"message":"permission denied for table vehicles"}`)
	err = s.Delete(context.Background(), v.ID)
	assert.EqualError(t, err, "permission denied for table vehicles")

	got, _ := s.Get(v.ID)
	assert.True(t, got.IsActive)
}

func TestVehicleStore_FollowsTransportUpdates(t *testing.T) {
	s := NewVehicleStore(nil, Options{DemoMode: true}, zerolog.Nop())
	_, err := s.Load(context.Background(), "c1")
	require.NoError(t, err)

	sim := transport.NewSimulator(transport.SimulatorOptions{Seed: 1}, zerolog.Nop())
	detach := s.Attach(sim)
	require.NoError(t, sim.Connect(context.Background()))
	defer sim.Close()

	require.NoError(t, sim.SubscribeToVehicle("demo-vehicle-2"))
	sim.StepVehicles()

	v, ok := s.Get("demo-vehicle-2")
	require.True(t, ok)
	assert.Equal(t, VehicleInTransit, v.Status)
	require.NotNil(t, v.Speed)
	assert.Less(t, *v.Speed, 100/3.6)
	require.NotNil(t, v.LastSeen)

	detach()
	before := *v.LastSeen
	sim.StepVehicles()
	v, _ = s.Get("demo-vehicle-2")
	assert.Equal(t, before, *v.LastSeen)
}

func TestVehicleStore_ApplyUpdateIgnoresUnknown(t *testing.T) {
	s := NewVehicleStore(nil, Options{DemoMode: true}, zerolog.Nop())
	assert.False(t, s.ApplyUpdate(transport.VehicleUpdate{VehicleID: "ghost"}))
	assert.Empty(t, s.All())
}

func TestVehicleStore_ConcurrentUpdatesNeverInsertRows(t *testing.T) {
	s := NewVehicleStore(nil, Options{DemoMode: true}, zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20000; i++ {
			s.ApplyUpdate(transport.VehicleUpdate{VehicleID: "ghost", Speed: 10})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.upsert(Vehicle{ID: fmt.Sprintf("v%d", i), Plate: fmt.Sprintf("P-%03d", i), IsActive: true})
			s.ApplyUpdate(transport.VehicleUpdate{VehicleID: fmt.Sprintf("v%d", i), Speed: 5})
		}
	}()

	for i := 0; i < 20000; i++ {
		_, ok := s.Get("ghost")
		require.False(t, ok)
	}
	wg.Wait()

	all := s.All()
	require.Len(t, all, 200)
	for _, v := range all {
		assert.NotEmpty(t, v.ID)
		require.NotNil(t, v.Speed)
		assert.Equal(t, 5.0, *v.Speed)
	}
}
