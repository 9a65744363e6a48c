package stores

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/transport"
)

func TestFleet_FollowsSimulatorAfterStart(t *testing.T) {
	sim := transport.NewSimulator(transport.SimulatorOptions{Seed: 3}, zerolog.Nop())
	require.NoError(t, sim.Connect(context.Background()))
	defer sim.Close()

	fleet := NewFleet(nil, nil, sim, "c1", Options{DemoMode: true}, zerolog.Nop())
	fleet.WarehouseID = "w1"
	require.NoError(t, fleet.Start())

	assert.Len(t, fleet.Warehouse.FreePositions(), 2)

	assert.Len(t, fleet.Vehicles.All(), 3)
	assert.Len(t, fleet.Drivers.All(), 3)

	before, _ := fleet.Vehicles.Get("demo-vehicle-3")
	assert.Nil(t, before.LastSeen)

	sim.StepVehicles()
	for _, v := range fleet.Vehicles.Active() {
		assert.NotNil(t, v.LastSeen, v.ID)
		assert.Equal(t, VehicleInTransit, v.Status, v.ID)
	}

	require.NoError(t, fleet.Stop())
	sim.StepAlerts()
	assert.Empty(t, fleet.Routes.Alerts())
}

func TestFleet_LoadFailureDoesNotStopStart(t *testing.T) {
	rest, db := newFakeRest(t)
	rest.fail(503, `{"message":"service unavailable"}`)

	fleet := NewFleet(db, nil, nil, "c1", Options{}, zerolog.Nop())
	fleet.WarehouseID = "w1"
	require.NoError(t, fleet.Start())
	assert.EqualError(t, fleet.Vehicles.Err(), "service unavailable")
	assert.EqualError(t, fleet.Warehouse.Err(), "service unavailable")
	assert.EqualError(t, fleet.Rates.Err(), "service unavailable")
	require.NoError(t, fleet.Stop())
}
