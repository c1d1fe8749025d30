package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrScanFailed is returned when the server reports an error or the
	// stream breaks before a terminal event.
	ErrScanFailed = errors.New("scan failed")

	// ErrScanIncomplete is returned when the stream closes cleanly without
	// a done or error event.
	ErrScanIncomplete = errors.New("scan ended without a result")
)

// Source yields events in arrival order. Next returns io.EOF at the end of
// the stream. Close makes a pending or later Next return.
type Source interface {
	Next() (Event, error)
	Close() error
}

// Run feeds src through Reduce starting from s, calling onUpdate after every
// applied event. Cancelling ctx closes src. After a terminal event the
// remaining stream is drained without touching the state.
func Run(ctx context.Context, src Source, s State, onUpdate func(State)) (State, error) {
	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()

	for {
		ev, err := src.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s, ctxErr
			}
			if errors.Is(err, io.EOF) || s.Done() {
				break
			}
			return s, fmt.Errorf("%w: read stream: %v", ErrScanFailed, err)
		}
		if s.Done() {
			continue
		}
		s = Reduce(s, ev)
		if onUpdate != nil {
			onUpdate(s)
		}
	}

	return s, Outcome(s)
}

// Outcome maps a drained state to its error: nil for done, ErrScanFailed
// for a server error and ErrScanIncomplete when no terminal event arrived.
func Outcome(s State) error {
	if s.Terminal == nil {
		return ErrScanIncomplete
	}
	if s.Terminal.Kind == TerminalError {
		return fmt.Errorf("%w: %s", ErrScanFailed, s.Terminal.Message)
	}
	return nil
}
