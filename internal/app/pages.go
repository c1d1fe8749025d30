package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jwulff/deepscan/internal/api"
)

// parsePageRange reads the page field: "" for every page, "12" for one
// page, "10-50" for a range and "10-" or "-50" for an open one. Pages are
// 1-indexed and inclusive.
func parsePageRange(s string) (start, end *int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}

	lo, hi, isRange := strings.Cut(s, "-")
	if !isRange {
		hi = lo
	}
	if start, err = parsePage(lo); err != nil {
		return nil, nil, err
	}
	if end, err = parsePage(hi); err != nil {
		return nil, nil, err
	}
	if start == nil && end == nil {
		return nil, nil, fmt.Errorf("invalid page range %q", s)
	}
	if start != nil && end != nil && *start > *end {
		return nil, nil, fmt.Errorf("invalid page range %q: start after end", s)
	}
	return start, end, nil
}

func parsePage(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("invalid page %q", s)
	}
	return api.IntPtr(n), nil
}

// formatPageRange is the inverse of parsePageRange for configured
// defaults. Zero leaves an end open.
func formatPageRange(start, end int) string {
	switch {
	case start > 0 && end > 0 && start == end:
		return strconv.Itoa(start)
	case start > 0 && end > 0:
		return fmt.Sprintf("%d-%d", start, end)
	case start > 0:
		return fmt.Sprintf("%d-", start)
	case end > 0:
		return fmt.Sprintf("-%d", end)
	}
	return ""
}
