package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
)

// rootCtx is the process context, canceled on SIGINT/SIGTERM so saga
// steps and daemon loops shut down cleanly.
var rootCtx context.Context

// jsonOutput mirrors the persistent --json flag.
var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "civic",
	Short: "Git-native civic record management",
	Long: `civic manages municipal records (bylaws, policies, resolutions, minutes)
as markdown files under git, with a SQLite metadata store and
saga-coordinated lifecycle operations.

Record changes run as sagas: every step either completes or is
compensated, so the file tree, the metadata store, and the git history
never drift apart.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
		&cobra.Group{ID: "records", Title: "Record Commands:"},
		&cobra.Group{ID: "views", Title: "View Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx

	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}
	if config.GetBool("json") {
		jsonOutput = true
	}

	if err := rootCmd.Execute(); err != nil {
		fatalf("%v", err)
	}
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// fatalf reports a fatal error and exits. In JSON mode the error goes
// to stdout as a document so scripted callers see structured failures.
func fatalf(format string, args ...interface{}) {
	if jsonOutput {
		outputJSON(map[string]string{"error": fmt.Sprintf(format, args...)})
	} else {
		fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	}
	os.Exit(1)
}
