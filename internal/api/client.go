package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client talks to the Deep Scanner backend over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client // bounded by the configured timeout
	stream   *http.Client // no timeout; scans run for minutes
	validate *validator.Validate
	log      *zap.Logger
}

// New creates a client for baseURL (including the /api prefix).
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		stream:   &http.Client{},
		validate: validator.New(),
		log:      log,
	}
}

// ListDocuments returns simple-path documents.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.doJSON(ctx, http.MethodGet, "/documents", nil, &docs); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a simple-path document.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// DeleteProDocument removes a Pro document and its uploaded parts. The
// backend needs the Gemini key to delete the parts it holds there.
func (c *Client) DeleteProDocument(ctx context.Context, id, apiKey string) error {
	path := "/pro/documents/" + url.PathEscape(id) + "?" + url.Values{"gemini_api_key": {apiKey}}.Encode()
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete pro document: %w", err)
	}
	return nil
}

// UploadDocument sends a whole PDF in one multipart request.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (Document, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}

	var doc Document
	if err := c.do(ctx, http.MethodPost, "/documents/upload", mw.FormDataContentType(), &body, &doc); err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	return doc, nil
}

// ListProDocuments returns documents from the chunked pipeline.
func (c *Client) ListProDocuments(ctx context.Context) ([]ProDocument, error) {
	var docs []ProDocument
	if err := c.doJSON(ctx, http.MethodGet, "/pro/documents", nil, &docs); err != nil {
		return nil, fmt.Errorf("list pro documents: %w", err)
	}
	return docs, nil
}

// InitUpload opens a chunked upload session and returns its id.
func (c *Client) InitUpload(ctx context.Context, filename string, size int64) (string, error) {
	req := UploadInitRequest{Filename: filename, SizeBytes: size}
	if err := c.validate.Struct(req); err != nil {
		return "", fmt.Errorf("init upload: %w", err)
	}
	var resp UploadInitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/pro/upload/init", req, &resp); err != nil {
		return "", fmt.Errorf("init upload: %w", err)
	}
	if resp.UploadID == "" {
		return "", fmt.Errorf("init upload: empty upload id")
	}
	return resp.UploadID, nil
}

// SendChunk appends raw bytes to an upload session. The backend appends
// in arrival order, so offset is only used for diagnostics.
func (c *Client) SendChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) (ChunkAck, error) {
	var ack ChunkAck
	path := "/pro/upload/" + url.PathEscape(uploadID) + "/chunk"
	if err := c.do(ctx, http.MethodPost, path, "application/octet-stream", bytes.NewReader(chunk), &ack); err != nil {
		return ChunkAck{}, fmt.Errorf("send chunk at %d: %w", offset, err)
	}
	return ack, nil
}

// CompleteUpload finalizes the session and registers the Pro document.
func (c *Client) CompleteUpload(ctx context.Context, uploadID, apiKey string) (ProDocumentSummary, error) {
	req := UploadCompleteRequest{UploadID: uploadID, GeminiAPIKey: apiKey}
	if err := c.validate.Struct(req); err != nil {
		return ProDocumentSummary{}, fmt.Errorf("complete upload: %w", err)
	}
	var sum ProDocumentSummary
	if err := c.doJSON(ctx, http.MethodPost, "/pro/upload/complete", req, &sum); err != nil {
		return ProDocumentSummary{}, fmt.Errorf("complete upload: %w", err)
	}
	return sum, nil
}

// AnalyzeStream starts a scan and returns the SSE body. The caller must
// close it.
func (c *Client) AnalyzeStream(ctx context.Context, req AnalyzeRequest) (io.ReadCloser, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	body, err := c.openStream(ctx, "/analyze/stream", req)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return body, nil
}

// ProAnalyzeStream starts a Pro scan and returns the SSE body.
func (c *Client) ProAnalyzeStream(ctx context.Context, req ProAnalyzeRequest) (io.ReadCloser, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("pro analyze: %w", err)
	}
	body, err := c.openStream(ctx, "/pro/analyze/stream", req)
	if err != nil {
		return nil, fmt.Errorf("pro analyze: %w", err)
	}
	return body, nil
}

// ListAnalyses returns the backend's history in insertion order.
func (c *Client) ListAnalyses(ctx context.Context, pro bool) ([]Analysis, error) {
	path := "/analyses"
	if pro {
		path = "/pro/analyses"
	}
	var list []Analysis
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return list, nil
}

// GetAnalysis fetches one analysis by id.
func (c *Client) GetAnalysis(ctx context.Context, pro bool, id string) (Analysis, error) {
	path := "/analyses/" + url.PathEscape(id)
	if pro {
		path = "/pro/analyses/" + url.PathEscape(id)
	}
	var a Analysis
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &a); err != nil {
		return Analysis{}, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// Chat sends one turn to /chat.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return ChatResponse{}, fmt.Errorf("chat: %w", err)
	}
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &resp); err != nil {
		return ChatResponse{}, fmt.Errorf("chat: %w", err)
	}
	return resp, nil
}

// ProChat sends one turn to /pro/chat.
func (c *Client) ProChat(ctx context.Context, req ProChatRequest) (ChatResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return ChatResponse{}, fmt.Errorf("pro chat: %w", err)
	}
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/pro/chat", req, &resp); err != nil {
		return ChatResponse{}, fmt.Errorf("pro chat: %w", err)
	}
	return resp, nil
}

// GetChat fetches a stored /chat transcript.
func (c *Client) GetChat(ctx context.Context, sessionID string) (ChatTranscript, error) {
	var tr ChatTranscript
	if err := c.doJSON(ctx, http.MethodGet, "/chat/"+url.PathEscape(sessionID), nil, &tr); err != nil {
		return ChatTranscript{}, fmt.Errorf("get chat: %w", err)
	}
	return tr, nil
}

// GenerateRubric asks the backend to draft a rubric. The text is opaque.
func (c *Client) GenerateRubric(ctx context.Context, req RubricRequest) (RubricResponse, error) {
	if err := c.validate.Struct(req); err != nil {
		return RubricResponse{}, fmt.Errorf("generate rubric: %w", err)
	}
	var resp RubricResponse
	if err := c.doJSON(ctx, http.MethodPost, "/rubric", req, &resp); err != nil {
		return RubricResponse{}, fmt.Errorf("generate rubric: %w", err)
	}
	return resp, nil
}

func (c *Client) openStream(ctx context.Context, path string, in any) (io.ReadCloser, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		c.log.Debug("backend error",
			zap.String("method", method),
			zap.String("path", req.URL.Path),
			zap.String("request_id", req.Header.Get("X-Request-ID")),
			zap.Error(err))
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// statusError reads a FastAPI-style {"detail": ...} body if present.
func statusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			se.Detail = s
		} else {
			se.Detail = string(payload.Detail)
		}
	} else {
		se.Detail = strings.TrimSpace(string(data))
	}
	return se
}
