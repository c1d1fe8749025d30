package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/deepscan/internal/api"
	"github.com/jwulff/deepscan/internal/chat"
	"github.com/jwulff/deepscan/internal/history"
	"github.com/jwulff/deepscan/internal/scan"
	"github.com/jwulff/deepscan/internal/stream"
	"github.com/jwulff/deepscan/internal/upload"
)

// loadDocumentsCmd lists the documents of the current mode.
func loadDocumentsCmd(b Backend, pro bool) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if pro {
			docs, err := b.ListProDocuments(ctx)
			if err != nil {
				return DocumentsLoadedMsg{Err: err}
			}
			items := make([]DocumentItem, 0, len(docs))
			for _, d := range docs {
				items = append(items, DocumentItem{ID: d.ID, Name: d.Filename, Pages: d.TotalPages})
			}
			return DocumentsLoadedMsg{Documents: items}
		}

		docs, err := b.ListDocuments(ctx)
		if err != nil {
			return DocumentsLoadedMsg{Err: err}
		}
		items := make([]DocumentItem, 0, len(docs))
		for _, d := range docs {
			items = append(items, DocumentItem{ID: d.ID, Name: d.Filename, Pages: d.TotalPages})
		}
		return DocumentsLoadedMsg{Documents: items}
	}
}

// loadHistoryCmd reads the analysis history.
func loadHistoryCmd(c *history.Cache) tea.Cmd {
	return func() tea.Msg {
		entries, err := c.List(context.Background())
		return HistoryLoadedMsg{Entries: entries, Err: err}
	}
}

// selectionChangedCmd announces a new selection.
func selectionChangedCmd(ids []string) tea.Cmd {
	return func() tea.Msg {
		return SelectionChangedMsg{IDs: ids}
	}
}

// resolveResumeCmd runs the resume policy off the UI loop.
func resolveResumeCmd(lookup history.Lookup, selection []string, analyzing bool) tea.Cmd {
	return func() tea.Msg {
		r := history.Resolve(context.Background(), lookup, selection, analyzing)
		return ResumeResolvedMsg{Selection: selection, Resume: r}
	}
}

// scanRequest is everything needed to open a scan stream.
type scanRequest struct {
	pro           bool
	documentIDs   []string
	query         string
	apiKey        string
	model         string
	speed         string
	relevanceMode string
	rubric        string
	pageStart     *int
	pageEnd       *int
}

// startScanCmd opens the scan stream and runs it in the background. State
// updates stream back one message per command until the run returns.
// Cancelling ctx closes the stream.
func startScanCmd(ctx context.Context, gen int, b Backend, req scanRequest, log *zap.Logger) tea.Cmd {
	return func() tea.Msg {
		rc, err := openScan(ctx, b, req)
		if err != nil {
			return ScanEndedMsg{Gen: gen, Err: fmt.Errorf("start scan: %w", err)}
		}
		d := stream.NewDecoder(rc, stream.WithLogger(log))

		ch := make(chan tea.Msg)
		go func() {
			defer close(ch)
			defer d.Close()
			_, err := scan.Run(ctx, d, scan.New(), func(s scan.State) {
				send(ctx, ch, ScanUpdateMsg{Gen: gen, State: s, next: ch})
			})
			if n := d.Skipped(); n > 0 {
				log.Debug("scan stream closed", zap.Int("skipped_lines", n))
			}
			send(ctx, ch, ScanEndedMsg{Gen: gen, Err: err})
		}()
		return waitCmd(ch)()
	}
}

func openScan(ctx context.Context, b Backend, req scanRequest) (io.ReadCloser, error) {
	if req.pro {
		return b.ProAnalyzeStream(ctx, api.ProAnalyzeRequest{
			ProDocumentID: req.documentIDs[0],
			Query:         req.query,
			GeminiAPIKey:  req.apiKey,
			DeepDive:      true,
		})
	}
	return b.AnalyzeStream(ctx, api.AnalyzeRequest{
		DocumentIDs:   req.documentIDs,
		Query:         req.query,
		Model:         req.model,
		Speed:         req.speed,
		RelevanceMode: req.relevanceMode,
		RubricText:    api.StringPtr(req.rubric),
		PageStart:     req.pageStart,
		PageEnd:       req.pageEnd,
	})
}

// send delivers msg unless ctx ends first.
func send(ctx context.Context, ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// waitCmd waits for the next message of a background run. It yields nil
// once the run is over.
func waitCmd(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// getAnalysisCmd fetches one analysis through the history cache.
func getAnalysisCmd(c *history.Cache, id string, fromScan bool) tea.Cmd {
	return func() tea.Msg {
		e, err := c.Get(context.Background(), id)
		return AnalysisLoadedMsg{Entry: e, Err: err, FromScan: fromScan}
	}
}

// recordCmd stores a finished scan in the history cache.
func recordCmd(c *history.Cache, e history.Entry) tea.Cmd {
	return func() tea.Msg {
		c.Record(e)
		entries, err := c.List(context.Background())
		return HistoryLoadedMsg{Entries: entries, Err: err}
	}
}

// sendChatCmd runs one chat round trip.
func sendChatCmd(gen int, s chat.Sender, sess chat.Session, message string) tea.Cmd {
	return func() tea.Msg {
		next, err := chat.Send(context.Background(), s, sess, message)
		return ChatRepliedMsg{Gen: gen, Session: next, Err: err}
	}
}

// uploadCmd uploads path in the background and streams its progress.
// Cancelling ctx stops the upload.
func uploadCmd(ctx context.Context, deps Deps, opts Options, path string) tea.Cmd {
	return func() tea.Msg {
		ch := make(chan tea.Msg)
		go func() {
			defer close(ch)
			send(ctx, ch, runUpload(ctx, deps, opts, path, ch))
		}()
		return waitCmd(ch)()
	}
}

func runUpload(ctx context.Context, deps Deps, opts Options, path string, ch chan tea.Msg) UploadDoneMsg {
	name := filepath.Base(path)

	if opts.Pro {
		sum, err := deps.Uploader.UploadFile(ctx, path, opts.APIKey, func(p upload.Progress) {
			send(ctx, ch, UploadProgressMsg{Progress: p, next: ch})
		})
		if err != nil {
			return UploadDoneMsg{Name: name, Err: err}
		}
		return UploadDoneMsg{Name: name, Pages: sum.TotalPages, Pro: &sum}
	}

	if _, err := upload.PageCount(path); err != nil {
		return UploadDoneMsg{Name: name, Err: fmt.Errorf("%w: %w", upload.ErrUploadFailed, err)}
	}
	f, err := os.Open(path)
	if err != nil {
		return UploadDoneMsg{Name: name, Err: fmt.Errorf("%w: open file: %w", upload.ErrUploadFailed, err)}
	}
	defer f.Close()

	doc, err := deps.API.UploadDocument(ctx, name, f)
	if err != nil {
		return UploadDoneMsg{Name: name, Err: fmt.Errorf("%w: %w", upload.ErrUploadFailed, err)}
	}
	return UploadDoneMsg{Name: name, Pages: doc.TotalPages, Document: &doc}
}

// rubricCmd asks the backend to draft a rubric for query.
func rubricCmd(b Backend, query, model string) tea.Cmd {
	return func() tea.Msg {
		resp, err := b.GenerateRubric(context.Background(), api.RubricRequest{Query: query, Model: model})
		if err != nil {
			return RubricMsg{Err: err}
		}
		return RubricMsg{Text: resp.RubricText}
	}
}

// deleteDocumentCmd deletes a document of the current mode.
func deleteDocumentCmd(b Backend, pro bool, apiKey, id string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if pro {
			return DocumentDeletedMsg{ID: id, Err: b.DeleteProDocument(ctx, id, apiKey)}
		}
		return DocumentDeletedMsg{ID: id, Err: b.DeleteDocument(ctx, id)}
	}
}

// loadChatCmd fetches a stored conversation.
func loadChatCmd(ctx context.Context, c chat.Client, sessionID string) tea.Cmd {
	return func() tea.Msg {
		s, err := chat.Load(ctx, c, sessionID)
		return ChatLoadedMsg{Session: s, Err: err}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}
