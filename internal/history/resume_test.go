package history

import (
	"context"
	"testing"
)

// mapLookup answers from a fixed map and counts lookups.
type mapLookup struct {
	entries map[string]*Entry
	calls   int
}

func (m *mapLookup) MostRecentComplete(_ context.Context, documentID string) *Entry {
	m.calls++
	return m.entries[documentID]
}

func TestResolveRestoresCompleteEntry(t *testing.T) {
	prior := &Entry{ID: "an-1", ProDocumentID: "pd-1", Query: "indemnity", Status: StatusComplete, Result: []byte(`{"findings":[]}`)}
	lookup := &mapLookup{entries: map[string]*Entry{"pd-1": prior}}

	r := Resolve(context.Background(), lookup, []string{"pd-1"}, false)

	if r.Action != ResumeRestore {
		t.Fatalf("action = %v, want restore", r.Action)
	}
	if r.Entry.Query != "indemnity" {
		t.Errorf("query = %q, want indemnity", r.Entry.Query)
	}
	if string(r.Entry.Result) != `{"findings":[]}` {
		t.Errorf("result = %s", r.Entry.Result)
	}
}

func TestResolveClearsWithoutHistory(t *testing.T) {
	lookup := &mapLookup{}

	r := Resolve(context.Background(), lookup, []string{"pd-1"}, false)

	if r.Action != ResumeClear {
		t.Errorf("action = %v, want clear", r.Action)
	}
	if r.Entry != nil {
		t.Errorf("entry = %+v, want nil", r.Entry)
	}
}

func TestResolveKeepsInFlightScan(t *testing.T) {
	lookup := &mapLookup{entries: map[string]*Entry{"pd-1": {ID: "an-1"}}}

	r := Resolve(context.Background(), lookup, []string{"pd-1"}, true)

	if r.Action != ResumeKeep {
		t.Errorf("action = %v, want keep", r.Action)
	}
	if lookup.calls != 0 {
		t.Errorf("lookups = %d, want 0 while analyzing", lookup.calls)
	}
}

func TestResolveNeedsExactlyOneDocument(t *testing.T) {
	lookup := &mapLookup{entries: map[string]*Entry{"d-1": {ID: "an-1"}}}

	for _, sel := range [][]string{nil, {"d-1", "d-2"}} {
		r := Resolve(context.Background(), lookup, sel, false)
		if r.Action != ResumeClear {
			t.Errorf("selection %v: action = %v, want clear", sel, r.Action)
		}
	}
	if lookup.calls != 0 {
		t.Errorf("lookups = %d, want 0", lookup.calls)
	}
}

func TestActionString(t *testing.T) {
	tests := map[Action]string{
		ResumeClear:   "clear",
		ResumeRestore: "restore",
		ResumeKeep:    "keep",
	}
	for a, want := range tests {
		if a.String() != want {
			t.Errorf("%d.String() = %q, want %q", a, a.String(), want)
		}
	}
}
