package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/jwulff/deepscan/internal/api"
)

// Client is the chat side of the API. *api.Client implements it.
type Client interface {
	Chat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error)
	ProChat(ctx context.Context, req api.ProChatRequest) (api.ChatResponse, error)
	GetChat(ctx context.Context, sessionID string) (api.ChatTranscript, error)
}

type apiSender struct {
	client Client
	pro    bool
	apiKey string
}

// NewSender returns a Sender over the standard chat endpoint, or the pro
// endpoint when pro is set. Pro chat is about a single document.
func NewSender(client Client, pro bool, apiKey string) Sender {
	return &apiSender{client: client, pro: pro, apiKey: apiKey}
}

func (a *apiSender) Ask(ctx context.Context, req Request) (Reply, error) {
	var (
		resp api.ChatResponse
		err  error
	)
	if a.pro {
		if len(req.DocumentIDs) != 1 {
			return Reply{}, fmt.Errorf("pro chat needs exactly one document, got %d", len(req.DocumentIDs))
		}
		resp, err = a.client.ProChat(ctx, api.ProChatRequest{
			SessionID:     api.StringPtr(req.SessionID),
			ProDocumentID: req.DocumentIDs[0],
			Message:       req.Message,
			GeminiAPIKey:  a.apiKey,
		})
	} else {
		resp, err = a.client.Chat(ctx, api.ChatRequest{
			SessionID:   api.StringPtr(req.SessionID),
			DocumentIDs: req.DocumentIDs,
			Message:     req.Message,
		})
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{SessionID: resp.SessionID, Answer: resp.Text()}, nil
}

// Load rebuilds a stored conversation.
func Load(ctx context.Context, client Client, sessionID string) (Session, error) {
	tr, err := client.GetChat(ctx, sessionID)
	if err != nil {
		return Session{}, fmt.Errorf("load chat: %w", err)
	}

	s := Session{ID: tr.ID, DocumentIDs: tr.DocumentIDs}
	for _, m := range tr.Messages {
		msg := Message{Role: Role(m.Role), Content: m.Content}
		if t, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
			msg.At = t
		}
		s.Messages = append(s.Messages, msg)
	}
	return s, nil
}
