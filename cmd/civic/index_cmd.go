package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/index"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:     "index",
	GroupID: "system",
	Short:   "Regenerate listings and the search index",
	Long: `Regenerate the derived views of the record corpus: the per-type
markdown listings (records/<type>/index.md) and, with --rebuild, the
full-text search index repopulated from the record rows.

Use this after editing record files by hand or after pulling changes
made elsewhere.

Examples:
  civic index
  civic index --rebuild
  civic index --type policy --type bylaw`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		types, _ := cmd.Flags().GetStringArray("type")

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		// A rebuild drops and repopulates the search tables; two at once
		// would race.
		if rebuild {
			lock := flock.New(filepath.Join(env.root, ".civic", "index.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				fatalf("acquiring index lock: %v", err)
			}
			if !locked {
				fatalf("another index rebuild is in progress")
			}
			defer func() { _ = lock.Unlock() }()
		}

		err := env.deps.Indexer.GenerateIndexes(rootCtx, index.Options{
			Types:   types,
			Rebuild: rebuild,
		})
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"rebuilt": rebuild,
				"types":   types,
			})
			return
		}
		if rebuild {
			fmt.Printf("%s Search index rebuilt and listings regenerated\n", ui.RenderPass("✓"))
		} else {
			what := "all types"
			if len(types) > 0 {
				what = strings.Join(types, ", ")
			}
			fmt.Printf("%s Listings regenerated for %s\n", ui.RenderPass("✓"), what)
		}
	},
}

func init() {
	indexCmd.Flags().Bool("rebuild", false, "Repopulate the full-text index from record rows first")
	indexCmd.Flags().StringArray("type", nil, "Restrict to a record type (repeatable)")
	rootCmd.AddCommand(indexCmd)
}
