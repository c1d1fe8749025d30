package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/api"
	"github.com/jwulff/deepscan/internal/chat"
	"github.com/jwulff/deepscan/internal/history"
)

// backendServer fakes the scanner HTTP API. Once scanned is set, the
// analysis it produced shows up in history.
type backendServer struct {
	scanned atomic.Bool
	down    atomic.Bool
}

func (b *backendServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.down.Load() {
		http.Error(w, `{"detail":"maintenance"}`, http.StatusServiceUnavailable)
		return
	}

	analysis := api.Analysis{
		ID:          "a1",
		DocumentIDs: []string{"d1"},
		Query:       "indemnity",
		Status:      history.StatusComplete,
		ModelUsed:   "gemini-2.5-flash",
		Findings:    json.RawMessage(`[{"page_number":12,"text":"shall indemnify","confidence":"high","match_type":"match"}]`),
		CreatedAt:   "2026-10-16T09:30:00Z",
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/documents":
		writeJSON(w, []api.Document{
			{ID: "d1", Filename: "lease.pdf", TotalPages: 40},
			{ID: "d2", Filename: "annex.pdf", TotalPages: 12},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/analyses":
		if b.scanned.Load() {
			writeJSON(w, []api.Analysis{analysis})
			return
		}
		writeJSON(w, []api.Analysis{})
	case r.Method == http.MethodGet && r.URL.Path == "/analyses/a1":
		writeJSON(w, analysis)
	case r.Method == http.MethodPost && r.URL.Path == "/analyze/stream":
		b.scanned.Store(true)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, line := range strings.Split(strings.TrimSpace(standardStream), "\n") {
			fmt.Fprintln(w, line)
			if flusher != nil {
				flusher.Flush()
			}
		}
	case r.Method == http.MethodPost && r.URL.Path == "/chat":
		writeJSON(w, api.ChatResponse{SessionID: "s1", Response: "Page 12 covers it."})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// TestBackendFlow runs a whole session against an HTTP backend: load,
// select, scan, chat, then resume from the local mirror while the backend
// is down.
func TestBackendFlow(t *testing.T) {
	backend := &backendServer{}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	log := zap.NewNop()
	client := api.New(srv.URL, 5*time.Second, log)
	deps := Deps{
		API:     client,
		History: history.NewCache(client, false, store, time.Minute, log),
		Chat:    chat.NewSender(client, false, ""),
		Log:     log,
	}

	m := New(deps, Options{})
	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = drive(t, m, collect(m.Init())...)

	if len(m.documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(m.documents))
	}
	if len(m.history) != 0 {
		t.Fatalf("history = %d, want 0", len(m.history))
	}
	t.Logf("after load:\n%s", m.View())

	// Select d1 and scan.
	m = drive(t, m, key(KeySpace))
	m.query.SetValue("indemnity")
	m = drive(t, m, key(KeyScan))

	if m.analyzing {
		t.Fatal("scan should have finished")
	}
	if m.result == nil || m.result.AnalysisID != "a1" {
		t.Fatalf("result = %+v, want a1", m.result)
	}
	if len(m.history) != 1 {
		t.Fatalf("history = %d, want 1", len(m.history))
	}
	t.Logf("after scan:\n%s", m.View())

	// Chat about the selection.
	m.setFocus(FocusChat)
	m.chatInput.SetValue("Where is the indemnity clause?")
	m = drive(t, m, key(KeyEnter))

	if len(m.chatSession.Messages) != 2 {
		t.Fatalf("chat messages = %d, want 2", len(m.chatSession.Messages))
	}
	if m.chatSession.ID != "s1" {
		t.Errorf("session id = %q, want s1", m.chatSession.ID)
	}

	// Fresh process, backend down: selecting d1 restores from the mirror.
	backend.down.Store(true)
	deps.History = history.NewCache(client, false, store, time.Minute, log)
	m2 := New(deps, Options{})
	m2, _ = applyUpdate(m2, tea.WindowSizeMsg{Width: 120, Height: 40})
	m2.documents = twoDocs()
	m2 = drive(t, m2, key(KeySpace))

	if m2.result == nil || m2.result.AnalysisID != "a1" || !m2.result.Restored {
		t.Fatalf("result = %+v, want restored a1", m2.result)
	}
	if len(m2.result.Findings) != 1 {
		t.Errorf("findings = %d, want 1", len(m2.result.Findings))
	}
}
