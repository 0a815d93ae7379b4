package records

import (
	"fmt"
	"regexp"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Header dates are always ISO-8601 strings: a bare date (2024-01-15) or an
// RFC3339 timestamp. The YAML decoder may hand back native time values or
// loosely formatted strings; everything funnels through CanonicalizeDate
// before validation or serialization.

var (
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoDateTimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}`)
)

// Layouts tried in order for string inputs. Date-only layouts canonicalize
// to 2006-01-02; layouts with a time component canonicalize to RFC3339.
var dateLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", true},
	{"2006/01/02", true},
	{"January 2, 2006", true},
	{"Jan 2, 2006", true},
	{"2 January 2006", true},
	{"02.01.2006", true},
}

var whenParser *when.Parser

func init() {
	whenParser = when.New(nil)
	whenParser.Add(en.All...)
	whenParser.Add(common.All...)
}

// CanonicalizeDate converts a header value into an ISO-8601 string.
// time.Time values keep their precision: midnight UTC collapses to a bare
// date, anything else stays a full timestamp. Strings are matched against
// the known layouts first, then handed to the natural-language parser so
// human input like "January 15, 2024" still canonicalizes. Values that
// resist every parser are returned unchanged for the validator to flag.
func CanonicalizeDate(value interface{}) string {
	switch t := value.(type) {
	case time.Time:
		return formatTime(t)
	case *time.Time:
		if t == nil {
			return ""
		}
		return formatTime(*t)
	case string:
		return canonicalizeDateString(t)
	case nil:
		return ""
	default:
		return canonicalizeDateString(fmt.Sprintf("%v", value))
	}
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.UTC().Format(time.RFC3339)
}

func canonicalizeDateString(s string) string {
	if s == "" {
		return ""
	}
	if isoDateRe.MatchString(s) {
		return s
	}

	for _, dl := range dateLayouts {
		t, err := time.Parse(dl.layout, s)
		if err != nil {
			continue
		}
		if dl.dateOnly {
			return t.Format("2006-01-02")
		}
		return t.UTC().Format(time.RFC3339)
	}

	// Natural-language fallback ("January 15th 2024", "last friday").
	if r, err := whenParser.Parse(s, time.Now()); err == nil && r != nil {
		return r.Time.Format("2006-01-02")
	}
	return s
}

// IsCanonicalDate reports whether s is already in canonical ISO-8601 form.
func IsCanonicalDate(s string) bool {
	if isoDateRe.MatchString(s) {
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	}
	if isoDateTimeRe.MatchString(s) {
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return true
		}
		if _, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return true
		}
	}
	return false
}

// Today returns the current date in canonical form.
func Today() string {
	return time.Now().Format("2006-01-02")
}

// CompareDates orders two canonical date strings. ISO-8601 strings order
// lexically, so a bare date sorts before any timestamp on the same day.
func CompareDates(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
