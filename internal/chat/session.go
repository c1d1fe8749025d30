// Package chat drives a multi-turn conversation about the selected
// documents. A Session is a value: every operation returns a new Session
// and never modifies the receiver.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrChatFailed matches every error returned by Send.
var ErrChatFailed = errors.New("chat failed")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript line.
type Message struct {
	Role    Role
	Content string
	At      time.Time
}

// Session is a conversation bound to one document selection. ID is empty
// until the backend answers the first message.
type Session struct {
	ID          string
	DocumentIDs []string
	Messages    []Message
}

// New starts an empty conversation about documentIDs.
func New(documentIDs []string) Session {
	return Session{DocumentIDs: slices.Clone(documentIDs)}
}

// ForSelection returns s when documentIDs is the selection s belongs to,
// and a fresh session otherwise.
func (s Session) ForSelection(documentIDs []string) Session {
	if slices.Equal(s.DocumentIDs, documentIDs) {
		return s
	}
	return New(documentIDs)
}

// Pending is a session with a user message appended optimistically.
type Pending struct {
	base    Session
	message Message
}

// Begin appends message as a tentative user turn.
func (s Session) Begin(message string) Pending {
	return Pending{
		base:    s,
		message: Message{Role: RoleUser, Content: message, At: time.Now()},
	}
}

// Session returns the tentative view, including the unanswered message.
func (p Pending) Session() Session {
	s := p.base
	s.Messages = append(slices.Clip(s.Messages), p.message)
	return s
}

// Confirm keeps the user message and appends the reply. The first reply
// assigns the session id; later ones keep it.
func (p Pending) Confirm(r Reply) Session {
	s := p.Session()
	if s.ID == "" {
		s.ID = r.SessionID
	}
	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: r.Answer, At: time.Now()})
	return s
}

// Revert drops the tentative message.
func (p Pending) Revert() Session {
	return p.base
}

// Request is one question to the backend.
type Request struct {
	SessionID   string
	DocumentIDs []string
	Message     string
}

// Reply is the backend's answer.
type Reply struct {
	SessionID string
	Answer    string
}

// Sender asks the backend.
type Sender interface {
	Ask(ctx context.Context, req Request) (Reply, error)
}

// Send asks message in s. On failure it returns s unchanged and an error
// matching ErrChatFailed.
func Send(ctx context.Context, sender Sender, s Session, message string) (Session, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return s, fmt.Errorf("%w: empty message", ErrChatFailed)
	}
	if len(s.DocumentIDs) == 0 {
		return s, fmt.Errorf("%w: no document selected", ErrChatFailed)
	}

	p := s.Begin(message)
	reply, err := sender.Ask(ctx, Request{
		SessionID:   s.ID,
		DocumentIDs: slices.Clone(s.DocumentIDs),
		Message:     message,
	})
	if err != nil {
		return p.Revert(), fmt.Errorf("%w: %w", ErrChatFailed, err)
	}
	return p.Confirm(reply), nil
}
