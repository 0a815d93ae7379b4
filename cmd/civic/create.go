package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/sagas"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create <type> <title>",
	GroupID: "records",
	Short:   "Create a new record from a template",
	Long: `Create a new record from a template. The record id is derived from the
type and a slug of the title, the template is rendered with smart
defaults, and the result runs through the create operation: database
row, markdown file, and git commit all succeed or none do.

With --draft the record is stored as a working draft in the database
only; publish it later with 'civic publish <id>'.

Examples:
  civic create policy "Open Data Policy"
  civic create bylaw "Noise Curfew" --author "Ada Lovelace"
  civic create resolution "Budget 2026" --draft
  civic create minutes "Council Session" --dry-run
  civic create --interactive`,
	Args: func(cmd *cobra.Command, args []string) error {
		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			return nil
		}
		if len(args) != 2 {
			return fmt.Errorf("expected <type> <title>, got %d argument(s)", len(args))
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		in := &createInput{}
		in.Template, _ = cmd.Flags().GetString("template")
		in.Author, _ = cmd.Flags().GetString("author")
		in.Draft, _ = cmd.Flags().GetBool("draft")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		interactive, _ := cmd.Flags().GetBool("interactive")

		if interactive {
			if err := runCreateForm(in); err != nil {
				fatalf("%v", err)
			}
		} else {
			in.Type, in.Title = args[0], args[1]
		}

		if !validRecordType(in.Type) {
			fatalf("unknown record type %q (valid: %s)", in.Type, strings.Join(config.GetRecordTypes(), ", "))
		}
		if strings.TrimSpace(in.Title) == "" {
			fatalf("title must not be empty")
		}

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		author := config.GetAuthor(in.Author)
		id := records.NewID(in.Type, in.Title)

		engine := env.templates()
		tmpl, err := engine.Load(in.Type, in.Template)
		if err != nil {
			fatalf("%v", err)
		}
		rendered, err := engine.Render(tmpl, map[string]interface{}{
			"id":     id,
			"title":  in.Title,
			"type":   in.Type,
			"author": author,
		})
		if err != nil {
			fatalf("rendering template: %v", err)
		}

		if dryRun {
			fmt.Print(rendered)
			if !strings.HasSuffix(rendered, "\n") {
				fmt.Println()
			}
			return
		}

		rec, err := records.Parse(rendered, "")
		if err != nil {
			fatalf("template %s/%s produced an invalid record: %v", in.Type, in.Template, err)
		}
		// Custom templates may omit identity fields; the command line is
		// authoritative for them.
		rec.ID = id
		rec.Title = in.Title
		rec.Type = in.Type
		if rec.Author == "" {
			rec.Author = author
		}

		if in.Draft {
			if err := env.store.CreateDraft(rootCtx, rec); err != nil {
				fatalf("%v", err)
			}
			printCreatedDraft(rec)
			return
		}

		// A repeated submission of the same record replays the original
		// result instead of failing on the duplicate row.
		req := sagas.NewCreateRequest(rec, author)
		req.IdempotencyKey = sagas.RequestKey(sagas.TypeCreateRecord, rec.ID, rec)
		res, err := env.coord.Execute(rootCtx, env.defs[sagas.TypeCreateRecord], req)
		if err != nil {
			fatalf("%v", err)
		}

		stored, err := env.store.GetRecord(rootCtx, rec.ID)
		if err != nil || stored == nil {
			stored = rec
		}
		if jsonOutput {
			outputJSON(stored)
			return
		}
		fmt.Printf("\n%s Created record: %s\n", ui.RenderPass("✓"), stored.ID)
		fmt.Printf("  Title:  %s\n", stored.Title)
		fmt.Printf("  Type:   %s\n", stored.Type)
		fmt.Printf("  Status: %s\n", stored.Status)
		fmt.Printf("  Path:   %s\n", stored.Path)
		if stored.Commit != "" {
			fmt.Printf("  Commit: %s\n", shortCommit(stored.Commit))
		}
		if res.Replayed {
			fmt.Printf("  %s\n", ui.RenderMuted("(replayed from a previous run)"))
		}
	},
}

func printCreatedDraft(rec *records.Record) {
	if jsonOutput {
		outputJSON(rec)
		return
	}
	fmt.Printf("\n%s Created draft: %s\n", ui.RenderPass("✓"), rec.ID)
	fmt.Printf("  Title:  %s\n", rec.Title)
	fmt.Printf("  Type:   %s\n", rec.Type)
	fmt.Printf("  Status: %s\n", rec.Status)
	fmt.Printf("\nPublish it with %s\n", ui.RenderAccent("civic publish "+rec.ID))
}

func validRecordType(recordType string) bool {
	for _, t := range config.GetRecordTypes() {
		if t == recordType {
			return true
		}
	}
	return false
}

func init() {
	createCmd.Flags().StringP("template", "t", "default", "Template name to render")
	createCmd.Flags().String("author", "", "Record author (default: config, git user, hostname)")
	createCmd.Flags().Bool("draft", false, "Store as a working draft instead of an active record")
	createCmd.Flags().Bool("dry-run", false, "Render the record and print it without creating anything")
	createCmd.Flags().BoolP("interactive", "i", false, "Collect record details with an interactive form")
	rootCmd.AddCommand(createCmd)
}
