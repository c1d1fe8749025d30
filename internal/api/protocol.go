// Package api provides the HTTP client and wire types for the Deep Scanner
// backend. Requests and responses are JSON; scans stream back as SSE.
package api

import (
	"encoding/json"
	"strings"
)

// Document is a PDF ingested through the simple upload path.
type Document struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	TotalPages int    `json:"total_pages"`
	TotalWords int    `json:"total_words"`
	Status     string `json:"status,omitempty"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// ProDocument is a PDF ingested through the chunked Pro pipeline.
type ProDocument struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	TotalPages int       `json:"total_pages"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	Parts      []ProPart `json:"parts,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  string    `json:"created_at,omitempty"`
}

// ProPart is one page range of a Pro document as stored by the backend.
type ProPart struct {
	PartIndex int    `json:"part_index,omitempty"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	FileURI   string `json:"file_uri,omitempty"`
}

// UploadInitRequest opens a chunked upload session.
type UploadInitRequest struct {
	Filename  string `json:"filename" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"gt=0"`
}

type UploadInitResponse struct {
	UploadID string `json:"upload_id"`
}

// ChunkAck is returned for every accepted chunk.
type ChunkAck struct {
	UploadID      string `json:"upload_id"`
	UploadedBytes int64  `json:"uploaded_bytes"`
}

// UploadCompleteRequest finalizes an upload session.
type UploadCompleteRequest struct {
	UploadID     string `json:"upload_id" validate:"required"`
	GeminiAPIKey string `json:"gemini_api_key" validate:"required"`
}

// ProDocumentSummary is the result of a completed chunked upload.
type ProDocumentSummary struct {
	ProDocumentID string    `json:"pro_document_id"`
	TotalPages    int       `json:"total_pages"`
	Parts         []ProPart `json:"parts,omitempty"`
}

// AnalyzeRequest starts a streamed scan over simple-path documents.
type AnalyzeRequest struct {
	DocumentIDs   []string `json:"document_ids" validate:"min=1,dive,required"`
	Query         string   `json:"query" validate:"required"`
	Model         string   `json:"model,omitempty"`
	Speed         string   `json:"speed,omitempty" validate:"omitempty,oneof=thorough balanced fast"`
	PageStart     *int     `json:"page_start"`
	PageEnd       *int     `json:"page_end"`
	RelevanceMode string   `json:"relevance_mode,omitempty" validate:"omitempty,oneof=normal strict"`
	RubricText    *string  `json:"rubric_text"`
}

// ProAnalyzeRequest starts a streamed scan over a Pro document.
type ProAnalyzeRequest struct {
	ProDocumentID string `json:"pro_document_id" validate:"required"`
	Query         string `json:"query" validate:"required"`
	GeminiAPIKey  string `json:"gemini_api_key" validate:"required"`
	DeepDive      bool   `json:"deep_dive"`
}

// ChatRequest sends one turn to /chat. SessionID is nil on the first turn.
type ChatRequest struct {
	SessionID   *string  `json:"session_id"`
	DocumentIDs []string `json:"document_ids" validate:"min=1"`
	Message     string   `json:"message" validate:"required"`
}

// ProChatRequest sends one turn to /pro/chat.
type ProChatRequest struct {
	SessionID     *string `json:"session_id"`
	ProDocumentID string  `json:"pro_document_id" validate:"required"`
	Message       string  `json:"message" validate:"required"`
	GeminiAPIKey  string  `json:"gemini_api_key" validate:"required"`
}

// ChatResponse covers both chat endpoints: /chat answers in Response,
// /pro/chat answers in Answer (usually a JSON object).
type ChatResponse struct {
	SessionID string          `json:"session_id"`
	Response  string          `json:"response,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
}

// Text returns the assistant answer as display text.
func (r ChatResponse) Text() string {
	if r.Response != "" {
		return r.Response
	}
	raw := strings.TrimSpace(string(r.Answer))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Answer, &s); err == nil {
		return s
	}
	return raw
}

// ChatTranscript is a stored /chat session.
type ChatTranscript struct {
	ID          string        `json:"id"`
	DocumentIDs []string      `json:"document_ids,omitempty"`
	Messages    []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Analysis is one persisted scan as returned by the history endpoints.
type Analysis struct {
	ID            string          `json:"id"`
	DocumentIDs   []string        `json:"document_ids,omitempty"`
	ProDocumentID string          `json:"pro_document_id,omitempty"`
	DocumentName  string          `json:"document_name,omitempty"`
	Query         string          `json:"query"`
	Status        string          `json:"status"`
	ModelUsed     string          `json:"model_used,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Findings      json.RawMessage `json:"findings,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

// RubricRequest asks the backend to draft a rubric for a query.
type RubricRequest struct {
	Query string `json:"query" validate:"required"`
	Model string `json:"model,omitempty"`
}

type RubricResponse struct {
	RubricText string          `json:"rubric_text"`
	RubricJSON json.RawMessage `json:"rubric_json,omitempty"`
}

// IntPtr returns a pointer to an int value. Convenience for page ranges.
func IntPtr(i int) *int { return &i }

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
