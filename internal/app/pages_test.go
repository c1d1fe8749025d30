package app

import "testing"

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		in         string
		start, end int // 0 is unset
		wantErr    bool
	}{
		{in: ""},
		{in: "  "},
		{in: "10-50", start: 10, end: 50},
		{in: " 10 - 50 ", start: 10, end: 50},
		{in: "7", start: 7, end: 7},
		{in: "10-", start: 10},
		{in: "-50", end: 50},
		{in: "50-10", wantErr: true},
		{in: "0-5", wantErr: true},
		{in: "-", wantErr: true},
		{in: "a-b", wantErr: true},
		{in: "1-2-3", wantErr: true},
	}
	for _, tt := range tests {
		start, end, err := parsePageRange(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePageRange(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePageRange(%q): %v", tt.in, err)
			continue
		}
		if got := deref(start); got != tt.start {
			t.Errorf("parsePageRange(%q) start = %d, want %d", tt.in, got, tt.start)
		}
		if got := deref(end); got != tt.end {
			t.Errorf("parsePageRange(%q) end = %d, want %d", tt.in, got, tt.end)
		}
	}
}

func TestFormatPageRange(t *testing.T) {
	tests := []struct {
		start, end int
		want       string
	}{
		{0, 0, ""},
		{10, 50, "10-50"},
		{7, 7, "7"},
		{10, 0, "10-"},
		{0, 50, "-50"},
	}
	for _, tt := range tests {
		got := formatPageRange(tt.start, tt.end)
		if got != tt.want {
			t.Errorf("formatPageRange(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
		start, end, err := parsePageRange(got)
		if err != nil || deref(start) != tt.start || deref(end) != tt.end {
			t.Errorf("parsePageRange(%q) = %d, %d, %v", got, deref(start), deref(end), err)
		}
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
