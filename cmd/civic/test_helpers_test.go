package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/CivicPress/civicpress-sub010/internal/config"
)

// runGit runs a git command in dir, failing the test on any error.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// setupTestRepo builds an initialized civic repository in a temp
// directory and chdirs into it. The git identity is configured so
// saga commit steps work without global git config.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	t.Chdir(root)
	runGit(t, root, "init")
	runGit(t, root, "config", "user.email", "clerk@example.org")
	runGit(t, root, "config", "user.name", "Test Clerk")
	runGit(t, root, "config", "commit.gpgsign", "false")

	setupTestEnvOnly(t)
	runCommand(t, "init", "--quiet")
	return root
}

// setupTestEnvOnly resets the process globals without initializing a
// repository. Tests that drive civic init themselves start here.
func setupTestEnvOnly(t *testing.T) {
	t.Helper()
	rootCtx = context.Background()
	if err := config.Initialize(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
}

// runCommand executes the CLI with args and returns captured stdout.
// Commands that fail hard call os.Exit, so anything that returns here
// either succeeded or failed at the cobra layer.
func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	jsonOutput = false
	_ = rootCmd.PersistentFlags().Set("json", "false")

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	rootCmd.SetArgs(args)
	execErr := rootCmd.Execute()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	if execErr != nil {
		t.Fatalf("civic %s failed: %v\noutput: %s", strings.Join(args, " "), execErr, buf.String())
	}
	return buf.String()
}
