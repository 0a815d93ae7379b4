// Package git provides exec-based access to the content repository that
// holds the civic record files. All operations shell out to the system
// git binary; there is no embedded git implementation.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/CivicPress/civicpress-sub010/internal/config"
)

// Repository wraps a git working tree rooted at a civic data directory.
type Repository struct {
	root string
}

// New returns a Repository for the working tree rooted at root.
// The directory does not need to be a git repository yet; call Init.
func New(root string) *Repository {
	return &Repository{root: root}
}

// Root returns the working tree root.
func (r *Repository) Root() string {
	return r.root
}

// IsRepo reports whether root already contains a git repository.
func (r *Repository) IsRepo() bool {
	info, err := os.Stat(filepath.Join(r.root, ".git"))
	return err == nil && info.IsDir()
}

// Init creates a git repository at root. It is a no-op when one
// already exists, so re-running initialization is safe.
func (r *Repository) Init(ctx context.Context) error {
	if r.IsRepo() {
		return nil
	}
	cmd := exec.CommandContext(ctx, "git", "-C", r.root, "init")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git init failed: %w\nOutput: %s", err, output)
	}
	return nil
}

// Head returns the commit hash the repository currently points at.
func (r *Repository) Head(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", r.root, "rev-parse", "HEAD")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w\nOutput: %s", err, output)
	}
	return strings.TrimSpace(string(output)), nil
}

// Commit stages the given paths and commits them with message, returning
// the resulting commit hash. Paths may be absolute or relative to the
// repository root; deletions of tracked files are staged too, so a moved
// file is committed by passing both its old and new path.
//
// When the staged paths contain no changes (a retry after a successful
// commit lands here), no new commit is created and the current HEAD hash
// is returned instead.
func (r *Repository) Commit(ctx context.Context, message string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("nothing to commit: no paths given")
	}

	relPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		relPaths = append(relPaths, r.relPath(p))
	}

	// Stage only the named paths. git add records deletions for tracked
	// pathspecs, which covers archive moves.
	addArgs := append([]string{"-C", r.root, "add", "--"}, relPaths...)
	addCmd := exec.CommandContext(ctx, "git", addArgs...) //nolint:gosec // G204: paths from internal callers
	if output, err := addCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git add failed: %w\nOutput: %s", err, output)
	}

	staged, err := r.hasStagedChanges(ctx, relPaths)
	if err != nil {
		return "", err
	}
	if !staged {
		return r.Head(ctx)
	}

	commitArgs := buildCommitArgs(r.root, message, relPaths)
	commitCmd := exec.CommandContext(ctx, "git", commitArgs...) //nolint:gosec // G204: args from buildCommitArgs
	output, err := commitCmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git commit failed: %w\nOutput: %s", err, output)
	}

	return r.Head(ctx)
}

// hasStagedChanges reports whether any of the given pathspecs differ
// between the index and HEAD.
func (r *Repository) hasStagedChanges(ctx context.Context, relPaths []string) (bool, error) {
	args := append([]string{"-C", r.root, "diff", "--cached", "--quiet", "--"}, relPaths...)
	cmd := exec.CommandContext(ctx, "git", args...) //nolint:gosec // G204: paths from internal callers
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	// Exit status 1 means differences exist; anything else is a real error.
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff failed: %w", err)
}

// buildCommitArgs assembles git commit arguments honoring the configured
// author override and signing preference, with a pathspec restricting the
// commit to the named paths.
func buildCommitArgs(root, message string, relPaths []string) []string {
	args := []string{"-C", root, "commit"}

	if author := config.GetString("git.author"); author != "" {
		args = append(args, "--author", author)
	}

	if config.GetBool("git.no-gpg-sign") {
		args = append(args, "--no-gpg-sign")
	}

	args = append(args, "-m", message)
	args = append(args, "--")
	args = append(args, relPaths...)

	return args
}

// relPath converts p to a path relative to the repository root so that
// pathspecs work regardless of the caller's working directory. Paths that
// cannot be made relative are passed through unchanged.
func (r *Repository) relPath(p string) string {
	if !filepath.IsAbs(p) {
		return p
	}
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return p
	}
	return rel
}
