// Package hooks runs record-event subscribers.
// Subscribers are executable scripts under .civic/hooks/<event>/ that
// receive the event payload as JSON on stdin. Hook failures never
// propagate to the caller; record sagas emit events fire-and-forget.
package hooks

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/records"
)

// Record lifecycle events.
const (
	EventRecordCreated        = "record:created"
	EventRecordUpdated        = "record:updated"
	EventRecordArchived       = "record:archived"
	EventRecordPublished      = "record:published"
	EventRecordCreateReverted = "record:created:reverted"
)

// Payload is the event data delivered to subscribers.
type Payload struct {
	Event    string          `json:"event"`
	RecordID string          `json:"record_id"`
	Record   *records.Record `json:"record,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Emitter is the subscriber contract the record sagas emit through.
// Implementations must swallow their own failures.
type Emitter interface {
	Emit(event string, payload Payload)
}

// Runner executes hook scripts for record events.
type Runner struct {
	hooksDir string
	timeout  time.Duration
}

var _ Emitter = (*Runner)(nil)

// NewRunner creates a hook runner.
// hooksDir is typically .civic/hooks/ relative to the data root.
func NewRunner(hooksDir string) *Runner {
	return &Runner{
		hooksDir: hooksDir,
		timeout:  10 * time.Second,
	}
}

// NewRunnerFromWorkspace creates a hook runner for a data root, honoring
// the hooks.dir and hooks.timeout configuration keys.
func NewRunnerFromWorkspace(workspaceRoot string) *Runner {
	hooksDir := config.GetString("hooks.dir")
	if hooksDir == "" {
		hooksDir = filepath.Join(workspaceRoot, ".civic", "hooks")
	} else if !filepath.IsAbs(hooksDir) {
		hooksDir = filepath.Join(workspaceRoot, hooksDir)
	}

	r := NewRunner(hooksDir)
	if d := config.GetDuration("hooks.timeout"); d > 0 {
		r.timeout = d
	}
	return r
}

// Emit runs every hook script registered for event.
// Runs asynchronously - returns immediately, hooks run in background.
func (r *Runner) Emit(event string, payload Payload) {
	payload.Event = event
	for _, hookPath := range r.scriptsFor(event) {
		hookPath := hookPath
		// Fire-and-forget; hook errors never reach the caller.
		go func() {
			_ = r.runHook(hookPath, payload)
		}()
	}
}

// EmitSync runs the hooks for event synchronously and returns the first
// error. Useful for testing or when you need to wait for the hooks.
func (r *Runner) EmitSync(event string, payload Payload) error {
	payload.Event = event
	for _, hookPath := range r.scriptsFor(event) {
		if err := r.runHook(hookPath, payload); err != nil {
			return err
		}
	}
	return nil
}

// HookExists checks whether at least one script is registered for event.
func (r *Runner) HookExists(event string) bool {
	return len(r.scriptsFor(event)) > 0
}

// scriptsFor returns the executable scripts registered for event, in
// lexical order.
func (r *Runner) scriptsFor(event string) []string {
	dir := filepath.Join(r.hooksDir, eventDir(event))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // No hooks registered, skip silently
	}

	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		// Check if executable (Unix)
		if info.Mode()&0111 == 0 {
			continue
		}
		scripts = append(scripts, filepath.Join(dir, entry.Name()))
	}
	return scripts
}

// eventDir maps an event name to its hook directory. Colons are not
// valid in Windows file names, so record:created becomes record-created.
func eventDir(event string) string {
	return strings.ReplaceAll(event, ":", "-")
}
