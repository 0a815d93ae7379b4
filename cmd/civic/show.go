package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "views",
	Short:   "Show a record",
	Long: `Show a record: header fields from the metadata store, body from the
markdown file. On a terminal the body renders as styled markdown; in a
pipe it prints as-is. Drafts are shown from the database.

Examples:
  civic show policy-open-data
  civic show policy-open-data --raw
  civic show policy-open-data --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recordID := args[0]
		raw, _ := cmd.Flags().GetBool("raw")

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		rec, err := env.store.GetRecord(rootCtx, recordID)
		if err != nil {
			fatalf("%v", err)
		}
		isDraft := false
		if rec == nil {
			rec, err = env.store.GetDraft(rootCtx, recordID)
			if err != nil {
				fatalf("%v", err)
			}
			isDraft = rec != nil
		}
		if rec == nil {
			fatalf("record not found: %s", recordID)
		}

		if jsonOutput {
			outputJSON(rec)
			return
		}

		text := recordText(env.root, rec)
		if raw || !ui.IsTerminal() {
			fmt.Print(text)
			return
		}

		if isDraft {
			fmt.Printf("%s\n\n", ui.RenderWarn("⚠ draft (not yet published)"))
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(ui.GetWidth()),
		)
		if err != nil {
			fmt.Print(text)
			return
		}
		out, err := renderer.Render(text)
		if err != nil {
			fmt.Print(text)
			return
		}
		fmt.Print(out)
	},
}

// recordText returns the record's full markdown: the on-disk file when
// it exists, a fresh serialization otherwise (drafts have no file).
func recordText(root string, rec *records.Record) string {
	if rec.Path != "" {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rec.Path)))
		if err == nil {
			return string(data)
		}
	}
	text, err := records.Serialize(rec)
	if err != nil {
		return rec.Content
	}
	return text
}

func init() {
	showCmd.Flags().Bool("raw", false, "Print the record file without styling")
	rootCmd.AddCommand(showCmd)
}
