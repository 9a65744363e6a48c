package s3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers just enough of the S3 API for bucket checks and single
// part uploads.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	parts := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 1:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		w.Header().Set("ETag", `"9b2cf535f27731c974343645a3985328"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFakeS3(t *testing.T) (*fakeS3, Config) {
	f := &fakeS3{buckets: map[string]bool{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return f, Config{Endpoint: u.Host, AccessKeyID: "minio", SecretAccessKey: "minio123", Bucket: "invoices"}
}

func TestConnect_CreatesMissingBucket(t *testing.T) {
	f, cfg := newFakeS3(t)

	_, err := Connect(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, f.buckets["invoices"])
}

func TestUpload_ReturnsPresignedLink(t *testing.T) {
	f, cfg := newFakeS3(t)
	f.buckets["invoices"] = true

	store, err := Connect(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	xml := "<Invoice/>"
	obj, err := store.Upload(context.Background(), "c1/F001-00000042.xml", strings.NewReader(xml), int64(len(xml)), "application/xml")
	require.NoError(t, err)
	assert.Equal(t, "invoices", obj.Bucket)
	assert.Equal(t, "c1/F001-00000042.xml", obj.Name)
	assert.Contains(t, obj.URL, "/invoices/c1/F001-00000042.xml")
	assert.Contains(t, obj.URL, "X-Amz-Signature=")
	assert.Contains(t, f.requests, "PUT /invoices/c1/F001-00000042.xml")
}

func TestConnect_RequiresBucket(t *testing.T) {
	_, err := Connect(context.Background(), Config{Endpoint: "localhost:9000"}, zerolog.Nop())
	assert.Error(t, err)
}
