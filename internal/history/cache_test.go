package history

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/api"
)

// fakeBackend serves a fixed list in backend (insertion) order.
type fakeBackend struct {
	mu        sync.Mutex
	analyses  []api.Analysis
	err       error
	listCalls atomic.Int32
	getCalls  atomic.Int32
	gate      chan struct{}
}

func (f *fakeBackend) ListAnalyses(ctx context.Context, pro bool) ([]api.Analysis, error) {
	f.listCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]api.Analysis(nil), f.analyses...), nil
}

func (f *fakeBackend) GetAnalysis(ctx context.Context, pro bool, id string) (api.Analysis, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return api.Analysis{}, f.err
	}
	for _, a := range f.analyses {
		if a.ID == id {
			return a, nil
		}
	}
	return api.Analysis{}, &api.StatusError{StatusCode: 404, Detail: "Analysis not found"}
}

func (f *fakeBackend) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func sampleAnalyses() []api.Analysis {
	return []api.Analysis{
		{ID: "an-1", ProDocumentID: "pd-1", Query: "first", Status: StatusComplete, Result: []byte(`{"findings":[1]}`)},
		{ID: "an-2", ProDocumentID: "pd-1", Query: "second", Status: StatusComplete, Result: []byte(`{"findings":[2]}`)},
		{ID: "an-3", ProDocumentID: "pd-1", Query: "third", Status: "failed"},
		{ID: "an-4", ProDocumentID: "pd-2", Query: "other", Status: StatusComplete},
	}
}

func TestCacheListMostRecentFirst(t *testing.T) {
	b := &fakeBackend{analyses: sampleAnalyses()}
	c := NewCache(b, true, nil, time.Minute, zap.NewNop())

	got, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"an-4", "an-3", "an-2", "an-1"}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("entries[%d] = %q, want %q", i, got[i].ID, want[i])
		}
	}
}

func TestCacheListServedFromMemory(t *testing.T) {
	b := &fakeBackend{analyses: sampleAnalyses()}
	c := NewCache(b, true, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	first, _ := c.List(ctx)
	first[0].Query = "mutated"

	second, _ := c.List(ctx)
	if b.listCalls.Load() != 1 {
		t.Errorf("backend list calls = %d, want 1", b.listCalls.Load())
	}
	if second[0].Query == "mutated" {
		t.Error("caller mutation leaked into the cache")
	}

	c.Invalidate()
	c.List(ctx)
	if b.listCalls.Load() != 2 {
		t.Errorf("backend list calls after invalidate = %d, want 2", b.listCalls.Load())
	}
}

func TestCacheListCollapsesConcurrentMisses(t *testing.T) {
	b := &fakeBackend{analyses: sampleAnalyses(), gate: make(chan struct{})}
	c := NewCache(b, true, nil, time.Minute, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.List(context.Background()); err != nil {
				t.Errorf("List: %v", err)
			}
		}()
	}

	// Let the callers pile up on the in-flight fetch before releasing it.
	for b.listCalls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(b.gate)
	wg.Wait()

	if n := b.listCalls.Load(); n != 1 {
		t.Errorf("backend list calls = %d, want 1", n)
	}
}

func TestCacheMostRecentComplete(t *testing.T) {
	b := &fakeBackend{analyses: sampleAnalyses()}
	c := NewCache(b, true, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	e := c.MostRecentComplete(ctx, "pd-1")
	if e == nil {
		t.Fatal("expected an entry")
	}
	if e.ID != "an-2" {
		t.Errorf("id = %q, want an-2 (an-3 failed)", e.ID)
	}
	if string(e.Result) != `{"findings":[2]}` {
		t.Errorf("result = %s", e.Result)
	}

	if e := c.MostRecentComplete(ctx, "pd-9"); e != nil {
		t.Errorf("expected nil for unknown document, got %+v", e)
	}
}

func TestCacheMostRecentCompleteUnavailable(t *testing.T) {
	b := &fakeBackend{err: errors.New("connection refused")}
	c := NewCache(b, true, nil, time.Minute, zap.NewNop())

	if e := c.MostRecentComplete(context.Background(), "pd-1"); e != nil {
		t.Errorf("expected nil when history is unavailable, got %+v", e)
	}
}

func TestCacheFallsBackToMirror(t *testing.T) {
	store := openTestStore(t)
	b := &fakeBackend{analyses: sampleAnalyses()}
	ctx := context.Background()

	c := NewCache(b, true, store, time.Minute, zap.NewNop())
	if _, err := c.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}

	// A fresh cache with the backend down reads the mirror.
	b.fail(errors.New("connection refused"))
	c = NewCache(b, true, store, time.Minute, zap.NewNop())

	got, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List from mirror: %v", err)
	}
	if len(got) != 4 || got[0].ID != "an-4" {
		t.Errorf("mirror entries = %+v", got)
	}

	e := c.MostRecentComplete(ctx, "pd-1")
	if e == nil || e.ID != "an-2" {
		t.Errorf("MostRecentComplete from mirror = %+v, want an-2", e)
	}

	one, err := c.Get(ctx, "an-1")
	if err != nil {
		t.Fatalf("Get from mirror: %v", err)
	}
	if one.Query != "first" {
		t.Errorf("query = %q, want first", one.Query)
	}
}

func TestCacheMostRecentCompleteQueriesMirror(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Replace(ctx, false, []Entry{
		{ID: "an-2", DocumentIDs: []string{"d-1"}, Query: "newest", Status: StatusComplete},
		{ID: "an-1", DocumentIDs: []string{"d-1"}, Query: "older", Status: StatusComplete},
	})

	b := &fakeBackend{err: errors.New("connection refused")}
	c := NewCache(b, false, store, time.Minute, zap.NewNop())

	e := c.MostRecentComplete(ctx, "d-1")
	if e == nil || e.ID != "an-2" {
		t.Fatalf("MostRecentComplete = %+v, want an-2", e)
	}
	if b.listCalls.Load() != 1 {
		t.Errorf("backend list calls = %d, want 1", b.listCalls.Load())
	}
	if e := c.MostRecentComplete(ctx, "d-9"); e != nil {
		t.Errorf("expected nil for unknown document, got %+v", e)
	}
}

func TestCacheGetForgetsDeletedAnalysis(t *testing.T) {
	store := openTestStore(t)
	b := &fakeBackend{analyses: sampleAnalyses()}
	c := NewCache(b, true, store, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := c.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}

	// an-2 is deleted on the backend after the list was mirrored.
	b.mu.Lock()
	b.analyses = slices.DeleteFunc(b.analyses, func(a api.Analysis) bool { return a.ID == "an-2" })
	b.mu.Unlock()
	c.mem.Delete(entryKey("an-2"))

	_, err := c.Get(ctx, "an-2")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !api.IsNotFound(err) {
		t.Errorf("err = %v, should keep the backend 404", err)
	}

	mirrored, err := store.Get(ctx, true, "an-2")
	if err != nil {
		t.Fatalf("mirror Get: %v", err)
	}
	if mirrored != nil {
		t.Error("deleted analysis should leave the mirror")
	}

	got, _ := c.List(ctx)
	for _, e := range got {
		if e.ID == "an-2" {
			t.Error("deleted analysis should leave the cached list")
		}
	}
	if b.listCalls.Load() != 1 {
		t.Errorf("backend list calls = %d, want 1", b.listCalls.Load())
	}
}

func TestCacheGet(t *testing.T) {
	b := &fakeBackend{analyses: sampleAnalyses()}
	c := NewCache(b, true, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	e, err := c.Get(ctx, "an-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Query != "second" {
		t.Errorf("query = %q, want second", e.Query)
	}

	c.Get(ctx, "an-2")
	if n := b.getCalls.Load(); n != 1 {
		t.Errorf("backend get calls = %d, want 1", n)
	}

	_, err = c.Get(ctx, "missing")
	if !api.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestCacheRecord(t *testing.T) {
	store := openTestStore(t)
	b := &fakeBackend{analyses: sampleAnalyses()}
	c := NewCache(b, true, store, time.Minute, zap.NewNop())
	ctx := context.Background()

	c.List(ctx)
	c.Record(Entry{ID: "an-5", ProDocumentID: "pd-1", Query: "fresh", Status: StatusComplete})

	got, _ := c.List(ctx)
	if len(got) != 5 || got[0].ID != "an-5" {
		t.Fatalf("entries = %+v, want an-5 first", got)
	}
	if b.listCalls.Load() != 1 {
		t.Errorf("backend list calls = %d, want 1", b.listCalls.Load())
	}

	e := c.MostRecentComplete(ctx, "pd-1")
	if e == nil || e.Query != "fresh" {
		t.Errorf("MostRecentComplete = %+v, want fresh", e)
	}

	mirrored, err := store.Get(ctx, true, "an-5")
	if err != nil || mirrored == nil {
		t.Fatalf("mirror Get = %v, %v", mirrored, err)
	}
	if mirrored.CreatedAt.IsZero() {
		t.Error("recorded entry has no timestamp")
	}
}
