package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/sagas"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var archiveCmd = &cobra.Command{
	Use:     "archive <id>",
	GroupID: "records",
	Short:   "Archive a record",
	Long: `Archive a record: its status becomes archived, the file moves to
archive/<type>/<year>/, and the move is committed. Archived records
drop out of listings and search but remain in git history.

Archiving is administrative and works from any status. It cannot be
reversed by the workflow; restore a record by re-creating it.

Examples:
  civic archive bylaw-noise-curfew
  civic archive policy-open-data --yes`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recordID := args[0]
		yes, _ := cmd.Flags().GetBool("yes")

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		rec, err := env.store.GetRecord(rootCtx, recordID)
		if err != nil {
			fatalf("%v", err)
		}
		if rec == nil {
			fatalf("record not found: %s", recordID)
		}
		if rec.Status == "archived" {
			// Desired state already holds; repeating the command is
			// not an error.
			if jsonOutput {
				outputJSON(rec)
				return
			}
			fmt.Printf("Record %s is already archived.\n", recordID)
			return
		}

		if !yes && !jsonOutput {
			fmt.Printf("Archive %s (%s, status %s)?\n", rec.ID, rec.Title, rec.Status)
			if !ui.PromptYesNo("This removes it from listings and search.", false) {
				fmt.Println("Canceled.")
				return
			}
		}

		user := config.GetAuthor("")
		req := sagas.NewArchiveRequest(recordID, user)
		req.IdempotencyKey = sagas.RequestKey(sagas.TypeArchiveRecord, recordID)
		res, err := env.coord.Execute(rootCtx, env.defs[sagas.TypeArchiveRecord], req)
		if err != nil {
			fatalf("%v", err)
		}

		stored, err := env.store.GetRecord(rootCtx, recordID)
		if err != nil || stored == nil {
			stored = rec
		}
		if jsonOutput {
			outputJSON(stored)
			return
		}
		fmt.Printf("\n%s Archived record: %s\n", ui.RenderPass("✓"), recordID)
		fmt.Printf("  Path:   %s\n", stored.Path)
		if stored.Commit != "" {
			fmt.Printf("  Commit: %s\n", shortCommit(stored.Commit))
		}
		if res.Replayed {
			fmt.Printf("  %s\n", ui.RenderMuted("(replayed from a previous run)"))
		}
	},
}

func init() {
	archiveCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(archiveCmd)
}
