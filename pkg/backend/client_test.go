package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vehicleRow struct {
	ID    string `json:"id" validate:"required"`
	Plate string `json:"plate" validate:"required"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{URL: srv.URL, APIKey: "anon-key"}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestClient_SelectBuildsPostgrestQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/vehicles", r.URL.Path)
		assert.Equal(t, "eq.c1", r.URL.Query().Get("company_id"))
		assert.Equal(t, "plate.asc", r.URL.Query().Get("order"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"v1","plate":"ABC-123"}]`))
	})

	rows, err := SelectRows[vehicleRow](context.Background(), c, "vehicles", Query{
		Filters: []Filter{Eq("company_id", "c1")},
		Order:   "plate.asc",
	})
	require.NoError(t, err)
	assert.Equal(t, []vehicleRow{{ID: "v1", Plate: "ABC-123"}}, rows)
}

func TestClient_NullDecodesAsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	rows, err := RPCRows[vehicleRow](context.Background(), c, "list_vehicles", nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestClient_InvalidRowIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"v1","plate":""}]`))
	})

	_, err := SelectRows[vehicleRow](context.Background(), c, "vehicles", Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vehicles row 0")
}

func TestClient_ErrorMessageIsVerbatim(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"duplicate key value violates unique constraint \"vehicles_plate_key\"","code":"23505","details":"Key (plate)=(ABC-123) already exists.","hint":null}`))
	})

	_, err := InsertRow[vehicleRow](context.Background(), c, "vehicles", vehicleRow{ID: "v1", Plate: "ABC-123"})
	require.Error(t, err)
	assert.Equal(t, `duplicate key value violates unique constraint "vehicles_plate_key"`, err.Error())

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusConflict, be.Status)
	assert.True(t, IsCode(err, "23505"))
}

func TestClient_NonEnvelopeErrorKeepsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream unavailable`))
	})

	err := c.Delete(context.Background(), "vehicles", []Filter{Eq("id", "v1")})
	assert.EqualError(t, err, "upstream unavailable")
}

func TestClient_InsertAndUpdateAskForRepresentation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		body, _ := io.ReadAll(r.Body)
		switch r.Method {
		case http.MethodPost:
			assert.JSONEq(t, `{"id":"v1","plate":"ABC-123"}`, string(body))
		case http.MethodPatch:
			assert.Equal(t, "eq.v1", r.URL.Query().Get("id"))
			assert.JSONEq(t, `{"plate":"XYZ-999"}`, string(body))
		}
		_, _ = w.Write([]byte(`[{"id":"v1","plate":"XYZ-999"}]`))
	})
	c.SetAccessToken("user-jwt")

	_, err := InsertRow[vehicleRow](context.Background(), c, "vehicles", vehicleRow{ID: "v1", Plate: "ABC-123"})
	require.NoError(t, err)

	row, err := UpdateRow[vehicleRow](context.Background(), c, "vehicles", []Filter{Eq("id", "v1")}, map[string]string{"plate": "XYZ-999"})
	require.NoError(t, err)
	assert.Equal(t, "XYZ-999", row.Plate)
}

func TestClient_RPCPostsParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/get_next_series_number", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"p_series":"F001"}`, string(body))
		_, _ = w.Write([]byte(`42`))
	})

	var next int
	require.NoError(t, c.RPC(context.Background(), "get_next_series_number", map[string]string{"p_series": "F001"}, &next))
	assert.Equal(t, 42, next)
}

func TestClient_WritesWithoutFiltersAreRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	assert.Error(t, c.Update(context.Background(), "vehicles", nil, map[string]string{}, nil))
	assert.Error(t, c.Delete(context.Background(), "vehicles", nil))
}

func TestInsertRow_EmptyRepresentation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := InsertRow[vehicleRow](context.Background(), c, "vehicles", vehicleRow{ID: "v1", Plate: "A"})
	assert.ErrorIs(t, err, ErrNoRows)
}
