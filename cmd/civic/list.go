package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/schema"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "views",
	Short:   "List or search records",
	Long: `List records from the metadata store, filtered by type, status, or
module. With --search the full-text index is queried instead; matches
rank by relevance. Archived records stay out of listings and searches
unless asked for with --status archived. With --drafts, unpublished
drafts are listed instead of records.

Examples:
  civic list
  civic list --type policy --status draft
  civic list --search "noise curfew"
  civic list --drafts
  civic list --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		recordType, _ := cmd.Flags().GetString("type")
		status, _ := cmd.Flags().GetString("status")
		module, _ := cmd.Flags().GetString("module")
		query, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		drafts, _ := cmd.Flags().GetBool("drafts")

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		filter := records.Filter{
			Type:   recordType,
			Status: status,
			Module: module,
			Limit:  limit,
			Offset: offset,
		}
		if status == "" && !drafts {
			filter.ExcludeStatus = "archived"
		}

		var (
			recs []*records.Record
			err  error
		)
		switch {
		case drafts:
			recs, err = env.store.ListDrafts(rootCtx, filter)
		case query != "":
			recs, err = env.store.SearchRecords(rootCtx, query, filter)
		default:
			recs, err = env.store.ListRecords(rootCtx, filter)
		}
		if err != nil {
			fatalf("%v", err)
		}

		if jsonOutput {
			if recs == nil {
				recs = []*records.Record{}
			}
			outputJSON(recs)
			return
		}

		width := ui.GetWidth()
		if query != "" {
			if len(recs) == 0 {
				// A query that is nearly a type name usually wants the
				// type filter, not full-text search.
				suggestion := ""
				if match := schema.ClosestMatch(query, config.GetRecordTypes(), 3); match != "" {
					suggestion = "civic list --type " + match
				}
				fmt.Println(ui.RenderNoResults(query, suggestion, width))
				return
			}
			rows := recordRows(recs)
			fmt.Println(ui.RenderSearchResults(query, rows, width))
			return
		}

		if len(recs) == 0 {
			if drafts {
				fmt.Println("No drafts found.")
			} else {
				fmt.Println("No records found.")
				fmt.Printf("Create one with %s\n", ui.RenderAccent(`civic create policy "My Policy"`))
			}
			return
		}
		fmt.Println(ui.RenderRecordsTable(recordRows(recs), width))
		fmt.Printf("\n%d record(s)\n", len(recs))
	},
}

func recordRows(recs []*records.Record) []ui.RecordRow {
	rows := make([]ui.RecordRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, ui.RecordRow{
			ID:      rec.ID,
			Title:   rec.Title,
			Type:    rec.Type,
			Status:  rec.Status,
			Updated: rec.Updated,
		})
	}
	return rows
}

func init() {
	listCmd.Flags().StringP("type", "t", "", "Filter by record type")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().String("module", "", "Filter by module")
	listCmd.Flags().String("search", "", "Full-text search instead of listing")
	listCmd.Flags().Int("limit", 0, "Maximum records to return (0: no limit)")
	listCmd.Flags().Int("offset", 0, "Records to skip")
	listCmd.Flags().Bool("drafts", false, "List unpublished drafts instead of records")
	rootCmd.AddCommand(listCmd)
}
