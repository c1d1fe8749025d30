package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jwulff/deepscan/internal/api"
)

// Backend is the history read side of the API. *api.Client implements it.
type Backend interface {
	ListAnalyses(ctx context.Context, pro bool) ([]api.Analysis, error)
	GetAnalysis(ctx context.Context, pro bool, id string) (api.Analysis, error)
}

const listKey = "list"

// ErrNotFound is returned by Get when the backend no longer has the
// analysis.
var ErrNotFound = errors.New("analysis not found")

// Cache is a read-through history cache for one mode (standard or pro).
// Fresh reads are served from memory for ttl; concurrent misses share one
// backend call; every successful read is mirrored to the store, which
// answers when the backend cannot.
type Cache struct {
	backend Backend
	pro     bool
	store   *Store
	mem     *cache.Cache
	group   singleflight.Group
	log     *zap.Logger
}

// NewCache returns a Cache. store may be nil to disable the local mirror.
func NewCache(backend Backend, pro bool, store *Store, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		backend: backend,
		pro:     pro,
		store:   store,
		mem:     cache.New(ttl, 2*ttl),
		log:     log.With(zap.Bool("pro", pro)),
	}
}

// List returns all past analyses, most recent first. When the backend is
// unavailable it serves the mirror.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	entries, err := c.fresh(ctx)
	if err != nil {
		c.log.Warn("list analyses", zap.Error(err))
		return c.mirrorList(ctx, err)
	}
	return entries, nil
}

// fresh returns the list from memory or the backend, never the mirror.
func (c *Cache) fresh(ctx context.Context) ([]Entry, error) {
	if v, ok := c.mem.Get(listKey); ok {
		return slices.Clone(v.([]Entry)), nil
	}

	v, err, _ := c.group.Do(listKey, func() (any, error) {
		return c.fetchList(ctx)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]Entry)), nil
}

func (c *Cache) fetchList(ctx context.Context) ([]Entry, error) {
	analyses, err := c.backend.ListAnalyses(ctx, c.pro)
	if err != nil {
		return nil, err
	}

	// The backend lists in insertion order.
	entries := make([]Entry, len(analyses))
	for i, a := range analyses {
		entries[len(analyses)-1-i] = FromAnalysis(a)
	}

	c.mem.SetDefault(listKey, entries)
	for _, e := range entries {
		c.mem.SetDefault(entryKey(e.ID), e)
	}
	if c.store != nil {
		if err := c.store.Replace(ctx, c.pro, entries); err != nil {
			c.log.Warn("mirror analyses", zap.Error(err))
		}
	}
	return entries, nil
}

func (c *Cache) mirrorList(ctx context.Context, cause error) ([]Entry, error) {
	if c.store == nil {
		return nil, fmt.Errorf("list analyses: %w", cause)
	}
	entries, err := c.store.List(ctx, c.pro)
	if err != nil {
		c.log.Warn("read mirror", zap.Error(err))
		return nil, fmt.Errorf("list analyses: %w", cause)
	}
	c.log.Info("serving history from mirror", zap.Int("entries", len(entries)))
	return entries, nil
}

// Get returns one analysis by id.
func (c *Cache) Get(ctx context.Context, id string) (Entry, error) {
	if v, ok := c.mem.Get(entryKey(id)); ok {
		return v.(Entry), nil
	}

	v, err, _ := c.group.Do(entryKey(id), func() (any, error) {
		a, err := c.backend.GetAnalysis(ctx, c.pro, id)
		if api.IsNotFound(err) {
			c.forget(ctx, id)
			return Entry{}, fmt.Errorf("get analysis %s: %w: %w", id, ErrNotFound, err)
		}
		if err != nil {
			if e := c.mirrorGet(ctx, id); e != nil {
				c.log.Warn("get analysis, using mirror", zap.String("id", id), zap.Error(err))
				return *e, nil
			}
			return Entry{}, fmt.Errorf("get analysis %s: %w", id, err)
		}

		e := FromAnalysis(a)
		c.mem.SetDefault(entryKey(id), e)
		if c.store != nil {
			if err := c.store.Save(ctx, c.pro, e); err != nil {
				c.log.Warn("mirror analysis", zap.String("id", id), zap.Error(err))
			}
		}
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (c *Cache) mirrorGet(ctx context.Context, id string) *Entry {
	if c.store == nil {
		return nil
	}
	e, err := c.store.Get(ctx, c.pro, id)
	if err != nil {
		c.log.Warn("read mirror", zap.String("id", id), zap.Error(err))
		return nil
	}
	return e
}

// MostRecentComplete returns the newest complete analysis of documentID,
// or nil when there is none or history is unavailable. With the backend
// down it asks the mirror.
func (c *Cache) MostRecentComplete(ctx context.Context, documentID string) *Entry {
	entries, err := c.fresh(ctx)
	if err == nil {
		for _, e := range entries {
			if e.Complete() && e.Matches(documentID) {
				return &e
			}
		}
		return nil
	}
	if c.store == nil {
		c.log.Warn("history unavailable", zap.String("document_id", documentID), zap.Error(err))
		return nil
	}
	e, serr := c.store.MostRecentComplete(ctx, c.pro, documentID)
	if serr != nil {
		c.log.Warn("history unavailable", zap.String("document_id", documentID), zap.Error(err), zap.NamedError("mirror", serr))
		return nil
	}
	return e
}

// forget drops an analysis the backend no longer has, so neither memory nor
// the mirror brings it back.
func (c *Cache) forget(ctx context.Context, id string) {
	c.mem.Delete(entryKey(id))
	if v, ok := c.mem.Get(listKey); ok {
		entries := slices.DeleteFunc(slices.Clone(v.([]Entry)), func(e Entry) bool { return e.ID == id })
		c.mem.SetDefault(listKey, entries)
	}
	if c.store != nil {
		if err := c.store.Delete(ctx, c.pro, id); err != nil {
			c.log.Warn("unmirror analysis", zap.String("id", id), zap.Error(err))
		}
	}
}

// Record adds a freshly completed analysis as the most recent entry.
func (c *Cache) Record(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	c.mem.SetDefault(entryKey(e.ID), e)

	if v, ok := c.mem.Get(listKey); ok {
		prev := v.([]Entry)
		entries := make([]Entry, 0, len(prev)+1)
		entries = append(entries, e)
		for _, p := range prev {
			if p.ID != e.ID {
				entries = append(entries, p)
			}
		}
		c.mem.SetDefault(listKey, entries)
	}

	if c.store != nil {
		if err := c.store.Save(context.Background(), c.pro, e); err != nil {
			c.log.Warn("mirror analysis", zap.String("id", e.ID), zap.Error(err))
		}
	}
}

// Invalidate drops everything held in memory. The next read goes to the
// backend.
func (c *Cache) Invalidate() {
	c.mem.Flush()
}

func entryKey(id string) string {
	return "analysis:" + id
}
