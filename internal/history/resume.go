package history

import "context"

// Action is what the view should do after a selection change.
type Action int

const (
	// ResumeClear drops the current view state.
	ResumeClear Action = iota
	// ResumeRestore shows Resume.Entry without scanning.
	ResumeRestore
	// ResumeKeep leaves the view alone because a scan is in flight.
	ResumeKeep
)

func (a Action) String() string {
	switch a {
	case ResumeRestore:
		return "restore"
	case ResumeKeep:
		return "keep"
	default:
		return "clear"
	}
}

// Resume is the outcome of Resolve.
type Resume struct {
	Action Action
	Entry  *Entry
}

// Lookup finds the newest complete analysis of a document. *Cache
// implements it.
type Lookup interface {
	MostRecentComplete(ctx context.Context, documentID string) *Entry
}

// Resolve applies the resume policy to a new selection. An in-flight scan
// always wins. Otherwise a single selected document with a complete past
// analysis is restored, and anything else clears the view.
func Resolve(ctx context.Context, lookup Lookup, selection []string, analyzing bool) Resume {
	if analyzing {
		return Resume{Action: ResumeKeep}
	}
	if len(selection) != 1 {
		return Resume{Action: ResumeClear}
	}
	if e := lookup.MostRecentComplete(ctx, selection[0]); e != nil {
		return Resume{Action: ResumeRestore, Entry: e}
	}
	return Resume{Action: ResumeClear}
}
