package stores

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeRest echoes inserted and patched rows back as PostgREST does with
// return=representation, and serves canned rows for selects.
type fakeRest struct {
	mu       sync.Mutex
	requests []recordedRequest
	selects  map[string]string
	status   int
	errBody  string
}

func newFakeRest(t *testing.T) (*fakeRest, backend.Querier) {
	t.Helper()
	f := &fakeRest{selects: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client, err := backend.NewClient(backend.Config{URL: srv.URL, APIKey: "test"}, zerolog.Nop())
	require.NoError(t, err)
	return f, client
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: table, Query: r.URL.RawQuery, Body: string(body)})
	status, errBody := f.status, f.errBody
	canned := f.selects[table]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(errBody))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if canned == "" {
			canned = "[]"
		}
		_, _ = w.Write([]byte(canned))
	case http.MethodPost:
		if strings.HasPrefix(table, "rpc/") {
			if canned == "" {
				canned = "null"
			}
			_, _ = w.Write([]byte(canned))
			return
		}
		if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
			_, _ = w.Write(body)
			return
		}
		_, _ = w.Write([]byte("[" + string(body) + "]"))
	case http.MethodPatch:
		if canned != "" {
			_, _ = w.Write([]byte(canned))
			return
		}
		_, _ = w.Write([]byte("[]"))
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeRest) fail(status int, body string) {
	f.mu.Lock()
	f.status, f.errBody = status, body
	f.mu.Unlock()
}

func (f *fakeRest) respond(table, rows string) {
	f.mu.Lock()
	f.selects[table] = rows
	f.mu.Unlock()
}

func (f *fakeRest) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeRest) callsTo(method string) []recordedRequest {
	var out []recordedRequest
	for _, r := range f.calls() {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func decodeBody(t *testing.T, body string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(body), v))
}
