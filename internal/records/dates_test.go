package records

import (
	"testing"
	"time"
)

func TestCanonicalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"canonical date passes through", "2024-01-15", "2024-01-15"},
		{"rfc3339 passes through", "2024-01-15T10:30:00Z", "2024-01-15T10:30:00Z"},
		{"slash date", "2024/01/15", "2024-01-15"},
		{"long month name", "January 15, 2024", "2024-01-15"},
		{"short month name", "Jan 15, 2024", "2024-01-15"},
		{"day first", "15 January 2024", "2024-01-15"},
		{"dotted european", "15.01.2024", "2024-01-15"},
		{"space separated datetime", "2024-01-15 10:30:00", "2024-01-15T10:30:00Z"},
		{"native midnight time collapses to date", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2024-01-15"},
		{"native time keeps precision", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), "2024-01-15T10:30:00Z"},
		{"nil", nil, ""},
		{"empty string", "", ""},
		{"unparseable survives for the validator", "not a date at all ###", "not a date at all ###"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalizeDate(tt.in); got != tt.want {
				t.Errorf("CanonicalizeDate(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeDateNaturalLanguage(t *testing.T) {
	// The natural-language parser anchors on the current time, so assert
	// the shape rather than a fixed value.
	got := CanonicalizeDate("tomorrow")
	if !IsCanonicalDate(got) {
		t.Errorf("CanonicalizeDate(tomorrow) = %q, want a canonical date", got)
	}
	want := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	if got != want {
		t.Errorf("CanonicalizeDate(tomorrow) = %q, want %q", got, want)
	}
}

func TestIsCanonicalDate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2024-01-15", true},
		{"2024-01-15T10:30:00Z", true},
		{"2024-01-15T10:30:00", true},
		{"2024-13-45", false},
		{"January 15, 2024", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsCanonicalDate(tt.in); got != tt.want {
			t.Errorf("IsCanonicalDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCompareDates(t *testing.T) {
	if CompareDates("2024-01-01", "2024-01-02") != -1 {
		t.Error("earlier date must compare less")
	}
	if CompareDates("2024-01-02", "2024-01-01") != 1 {
		t.Error("later date must compare greater")
	}
	if CompareDates("2024-01-01", "2024-01-01") != 0 {
		t.Error("equal dates must compare equal")
	}
}
