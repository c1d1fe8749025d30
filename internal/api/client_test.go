package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startMockBackend serves handler under /api and returns a client for it.
func startMockBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", handler))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return New(srv.URL+"/api", 5*time.Second, nil)
}

func TestInitUpload(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pro/upload/init", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req UploadInitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "contract.pdf", req.Filename)
		assert.Equal(t, int64(12), req.SizeBytes)

		w.Write([]byte(`{"upload_id":"up-1"}`))
	})

	id, err := client.InitUpload(context.Background(), "contract.pdf", 12)
	require.NoError(t, err)
	assert.Equal(t, "up-1", id)
}

func TestInitUploadRejectsEmptySize(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	_, err := client.InitUpload(context.Background(), "contract.pdf", 0)
	assert.Error(t, err)
}

func TestSendChunkRawBody(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pro/upload/up-1/chunk", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.7", string(body))
		w.Write([]byte(`{"upload_id":"up-1","uploaded_bytes":8}`))
	})

	ack, err := client.SendChunk(context.Background(), "up-1", 0, []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), ack.UploadedBytes)
}

func TestStatusErrorDetail(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Upload session not found"}`))
	})

	_, err := client.SendChunk(context.Background(), "missing", 0, []byte("x"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Upload session not found")
}

func TestAnalyzeStreamReturnsBody(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "indemnity clauses", raw["query"])
		assert.Nil(t, raw["page_start"], "page range is sent as null when unset")
		assert.Nil(t, raw["rubric_text"])

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"start\",\"total_pages\":3}\n\n"))
	})

	body, err := client.AnalyzeStream(context.Background(), AnalyzeRequest{
		DocumentIDs: []string{"doc-1"},
		Query:       "indemnity clauses",
		Speed:       "balanced",
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "data: "))
}

func TestAnalyzeStreamSendsPageRange(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, float64(10), raw["page_start"])
		assert.Equal(t, float64(50), raw["page_end"])
		w.Write([]byte("data: {\"type\":\"start\"}\n\n"))
	})

	body, err := client.AnalyzeStream(context.Background(), AnalyzeRequest{
		DocumentIDs: []string{"doc-1"},
		Query:       "indemnity",
		PageStart:   IntPtr(10),
		PageEnd:     IntPtr(50),
	})
	require.NoError(t, err)
	body.Close()
}

func TestProAnalyzeStreamSendsDeepDive(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pro/analyze/stream", r.URL.Path)
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "pd-1", raw["pro_document_id"])
		assert.Equal(t, true, raw["deep_dive"])
		w.Write([]byte("data: {\"type\":\"start\"}\n\n"))
	})

	body, err := client.ProAnalyzeStream(context.Background(), ProAnalyzeRequest{
		ProDocumentID: "pd-1",
		Query:         "indemnity",
		GeminiAPIKey:  "k",
		DeepDive:      true,
	})
	require.NoError(t, err)
	body.Close()
}

func TestDeleteProDocument(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/pro/documents/pd 1", r.URL.Path)
		assert.Equal(t, "key&x", r.URL.Query().Get("gemini_api_key"))
		w.Write([]byte(`{"message":"Deleted"}`))
	})

	require.NoError(t, client.DeleteProDocument(context.Background(), "pd 1", "key&x"))
}

func TestDeleteProDocumentNotFound(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Pro document not found"}`))
	})

	err := client.DeleteProDocument(context.Background(), "gone", "k")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestAnalyzeStreamValidation(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	tests := []struct {
		name string
		req  AnalyzeRequest
	}{
		{name: "no documents", req: AnalyzeRequest{Query: "q"}},
		{name: "no query", req: AnalyzeRequest{DocumentIDs: []string{"d"}}},
		{name: "bad speed", req: AnalyzeRequest{DocumentIDs: []string{"d"}, Query: "q", Speed: "warp"}},
		{name: "bad relevance", req: AnalyzeRequest{DocumentIDs: []string{"d"}, Query: "q", RelevanceMode: "loose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.AnalyzeStream(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeStreamHTTPError(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"No documents selected"}`))
	})

	_, err := client.AnalyzeStream(context.Background(), AnalyzeRequest{DocumentIDs: []string{"d"}, Query: "q"})
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "No documents selected", se.Detail)
}

func TestChatSendsNullSessionOnFirstTurn(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		v, ok := raw["session_id"]
		assert.True(t, ok, "session_id key must be present")
		assert.Nil(t, v)
		w.Write([]byte(`{"session_id":"s-1","response":"Page 4 covers it."}`))
	})

	resp, err := client.Chat(context.Background(), ChatRequest{DocumentIDs: []string{"d"}, Message: "where?"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", resp.SessionID)
	assert.Equal(t, "Page 4 covers it.", resp.Text())
}

func TestListAnalysesPaths(t *testing.T) {
	var paths []string
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`[{"id":"a-1","query":"q","status":"complete"}]`))
	})

	list, err := client.ListAnalyses(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a-1", list[0].ID)

	_, err = client.ListAnalyses(context.Background(), true)
	require.NoError(t, err)
	_, err = client.GetAnalysis(context.Background(), true, "a-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"/analyses", "/pro/analyses", "/pro/analyses/a-1"}, paths)
}

func TestUploadDocumentMultipart(t *testing.T) {
	client := startMockBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/upload", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "lease.pdf", hdr.Filename)
		w.Write([]byte(`{"id":"doc-9","filename":"lease.pdf","total_pages":12,"total_words":3400,"status":"ready"}`))
	})

	doc, err := client.UploadDocument(context.Background(), "lease.pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "doc-9", doc.ID)
	assert.Equal(t, 12, doc.TotalPages)
	assert.Equal(t, 3400, doc.TotalWords)
}
