package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/sagas"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var publishCmd = &cobra.Command{
	Use:     "publish <draft-id>",
	GroupID: "records",
	Short:   "Publish a draft as a record",
	Long: `Publish a working draft: its content becomes the record (creating it or
updating the existing one), the markdown file is written, the change is
committed, and the draft is deleted. All of it succeeds together or the
draft survives untouched.

Examples:
  civic publish resolution-budget-2026`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		draftID := args[0]

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		user := config.GetAuthor("")
		req := sagas.NewPublishRequest(draftID, user)
		req.IdempotencyKey = sagas.RequestKey(sagas.TypePublishDraft, draftID)
		res, err := env.coord.Execute(rootCtx, env.defs[sagas.TypePublishDraft], req)
		if err != nil {
			fatalf("%v", err)
		}

		stored, err := env.store.GetRecord(rootCtx, draftID)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(stored)
			return
		}
		fmt.Printf("\n%s Published record: %s\n", ui.RenderPass("✓"), draftID)
		if stored != nil {
			fmt.Printf("  Title:  %s\n", stored.Title)
			fmt.Printf("  Status: %s\n", stored.Status)
			fmt.Printf("  Path:   %s\n", stored.Path)
			if stored.Commit != "" {
				fmt.Printf("  Commit: %s\n", shortCommit(stored.Commit))
			}
		}
		if res.Replayed {
			fmt.Printf("  %s\n", ui.RenderMuted("(replayed from a previous run)"))
		}
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
