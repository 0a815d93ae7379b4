package sagas

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CivicPress/civicpress-sub010/internal/schema"
)

// ValidationError aborts a file-writing step when a record header
// fails schema validation. The message carries every error diagnostic,
// not just the first.
type ValidationError struct {
	RecordID string
	Result   *schema.Result
}

func (e *ValidationError) Error() string {
	var msgs []string
	if e.Result != nil {
		for _, d := range e.Result.Errors {
			msgs = append(msgs, d.Message)
		}
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("RECORD_VALIDATION_ERROR: record %s: header is invalid", e.RecordID)
	}
	return fmt.Sprintf("RECORD_VALIDATION_ERROR: record %s: %s", e.RecordID, strings.Join(msgs, "; "))
}

// IsValidationError reports whether err is, or wraps, a record
// validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
