package stores

import (
	"errors"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
)

// Options shared by every store.
type Options struct {
	// DemoMode serves a fixed dataset and keeps writes local instead of
	// calling the backend.
	DemoMode bool
}

var errNotFound = errors.New("not found in cache")

// cache is the upsert-by-id state every store keeps, plus the error of the
// last read.
type cache[T any] struct {
	items cmap.ConcurrentMap[string, T]
	id    func(T) string
	less  func(a, b T) bool

	// writes serializes mutations so update never races an upsert or remove
	// of the same id. Reads go straight to items.
	writes sync.Mutex

	mu  sync.RWMutex
	err error
}

func newCache[T any](id func(T) string, less func(a, b T) bool) *cache[T] {
	return &cache[T]{items: cmap.New[T](), id: id, less: less}
}

// replace swaps the whole content, used by loads.
func (c *cache[T]) replace(rows []T) {
	c.writes.Lock()
	defer c.writes.Unlock()
	c.items.Clear()
	for _, row := range rows {
		c.items.Set(c.id(row), row)
	}
}

func (c *cache[T]) upsert(row T) {
	c.writes.Lock()
	defer c.writes.Unlock()
	c.items.Set(c.id(row), row)
}

func (c *cache[T]) remove(id string) {
	c.writes.Lock()
	defer c.writes.Unlock()
	c.items.Remove(id)
}

func (c *cache[T]) get(id string) (T, bool) {
	return c.items.Get(id)
}

func (c *cache[T]) clear() {
	c.writes.Lock()
	defer c.writes.Unlock()
	c.items.Clear()
}

// update applies fn to a cached row. It reports whether the row existed.
// Missing ids are never inserted.
func (c *cache[T]) update(id string, fn func(*T)) bool {
	c.writes.Lock()
	defer c.writes.Unlock()
	current, ok := c.items.Get(id)
	if !ok {
		return false
	}
	fn(&current)
	c.items.Set(id, current)
	return true
}

// list returns the rows matching keep, sorted. A nil keep returns everything.
func (c *cache[T]) list(keep func(T) bool) []T {
	out := make([]T, 0, c.items.Count())
	for _, row := range c.items.Items() {
		if keep == nil || keep(row) {
			out = append(out, row)
		}
	}
	if c.less != nil {
		sort.Slice(out, func(i, j int) bool { return c.less(out[i], out[j]) })
	}
	return out
}

// Err returns the error of the last load, nil after a successful one.
func (c *cache[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *cache[T]) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// loaded records the outcome of a read. On failure the cache is emptied so
// stale rows are never shown next to an error.
func (c *cache[T]) loaded(rows []T, err error, logger zerolog.Logger, what string) ([]T, error) {
	if err != nil {
		c.clear()
		c.setErr(err)
		logger.Error().Err(err).Msgf("Failed to load %s", what)
		return []T{}, err
	}
	c.replace(rows)
	c.setErr(nil)
	logger.Debug().Int("count", len(rows)).Msgf("Loaded %s", what)
	return c.list(nil), nil
}

// backendOrDemo is embedded by stores to share the demo switch.
type backendOrDemo struct {
	db   backend.Querier
	demo bool
}
