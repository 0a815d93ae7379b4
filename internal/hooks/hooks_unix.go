//go:build unix

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// runHook executes the hook and enforces a timeout, killing the process
// group on expiration so descendant processes are terminated too.
func (r *Runner) runHook(hookPath string, payload Payload) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Command: hook_script <record_id> <event>
	// #nosec G204 -- hookPath is from the controlled .civic/hooks directory
	cmd := exec.CommandContext(ctx, hookPath, payload.RecordID, payload.Event)
	cmd.Stdin = bytes.NewReader(payloadJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Scripts may spawn their own children. Put the hook in its own
	// process group (Setpgid) so a timeout kill with a negative PID
	// reaches the whole group, not just the immediate process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
				return fmt.Errorf("kill process group: %w", err)
			}
		}
		// Wait for process to exit after the kill attempt
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}
