package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var (
	// Version is the current version of civic (overridden by ldflags at build time)
	Version = "0.1.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information.

With --check, compare this binary against the version the repository
was initialized with (.civic/config.yml). A repository newer than the
binary exits 1.`,
	Run: func(cmd *cobra.Command, args []string) {
		check, _ := cmd.Flags().GetBool("check")

		commit := resolveCommitHash()
		if check {
			checkRepoVersion(commit)
			return
		}

		if jsonOutput {
			result := map[string]string{
				"version": Version,
				"build":   Build,
			}
			if commit != "" {
				result["commit"] = commit
			}
			outputJSON(result)
			return
		}
		if commit != "" {
			fmt.Printf("civic version %s (%s: %s)\n", Version, Build, shortCommit(commit))
		} else {
			fmt.Printf("civic version %s (%s)\n", Version, Build)
		}
	},
}

// checkRepoVersion compares the binary against the repository's
// recorded version.
func checkRepoVersion(commit string) {
	repoVersion := config.GetString("version")
	if repoVersion == "" {
		fatalf("repository has no recorded version (run 'civic init' inside it first)")
	}

	cmp := semver.Compare("v"+Version, "v"+repoVersion)
	if jsonOutput {
		outputJSON(map[string]interface{}{
			"version":    Version,
			"repository": repoVersion,
			"compatible": cmp >= 0,
			"commit":     commit,
		})
		if cmp < 0 {
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Binary version:     %s\n", Version)
	fmt.Printf("Repository version: %s\n", repoVersion)
	if cmp < 0 {
		fmt.Printf("%s repository was initialized by a newer civic; upgrade this binary\n", ui.RenderFail("✗"))
		os.Exit(1)
	}
	fmt.Printf("%s compatible\n", ui.RenderPass("✓"))
}

func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func init() {
	versionCmd.Flags().Bool("check", false, "Check compatibility with the repository's recorded version")
	rootCmd.AddCommand(versionCmd)
}
