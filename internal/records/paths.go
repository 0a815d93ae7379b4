package records

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Record paths are always relative, always forward-slash, and joined to the
// configured data root only at the filesystem boundary.
//
//	records/<type>/<id>.md
//	records/<type>/<year>/<id>.md
//	archive/<type>/<year>/<id>.md

var yearDirRe = regexp.MustCompile(`^\d{4}$`)

// RecordPath returns the default active path for a record.
func RecordPath(recordType, id string) string {
	return path.Join("records", recordType, id+".md")
}

// RecordPathForYear returns the year-partitioned active path.
func RecordPathForYear(recordType, year, id string) string {
	return path.Join("records", recordType, year, id+".md")
}

// ArchivePath computes the destination for an archived record. When the
// active path already carries a year directory that year is kept; otherwise
// the year comes from the created timestamp.
func ArchivePath(rec *Record) (string, error) {
	if rec.Type == "" || rec.ID == "" {
		return "", fmt.Errorf("archive path requires record type and id")
	}

	ext := ".md"
	if rec.Path != "" {
		if e := path.Ext(rec.Path); e != "" {
			ext = e
		}
	}

	if year, ok := yearFromPath(rec.Path); ok {
		return path.Join("archive", rec.Type, year, rec.ID+ext), nil
	}

	year := yearFromDate(rec.Created)
	if year == "" {
		return "", fmt.Errorf("cannot derive archive year for record %s: no year in path %q and created %q is not a date", rec.ID, rec.Path, rec.Created)
	}
	return path.Join("archive", rec.Type, year, rec.ID+ext), nil
}

// yearFromPath extracts a 4-digit year directory from an active record
// path like records/bylaw/2024/law-1.md.
func yearFromPath(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	parts := strings.Split(path.Clean(ToSlash(p)), "/")
	// records/<type>/<year>/<file>
	if len(parts) == 4 && yearDirRe.MatchString(parts[2]) {
		return parts[2], true
	}
	return "", false
}

func yearFromDate(date string) string {
	if len(date) >= 4 && yearDirRe.MatchString(date[:4]) {
		return date[:4]
	}
	return ""
}

// ToSlash normalizes a path to forward slashes regardless of host OS.
func ToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
