package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/sagas"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "records",
	Short:   "Update fields on a record",
	Long: `Update fields on a record. Every update runs through the update
operation: the database row, the markdown file, and the git commit all
change together or not at all.

Fields are set with --set field=value (repeatable). Status changes are
checked against the workflow catalogue; id, type, created, commit, and
path can never be updated. Unknown field names merge into the record's
metadata.

List fields (linked_records, linked_geography_files, attached_files)
take comma-separated values.

Examples:
  civic update policy-open-data --set status=proposed
  civic update policy-open-data --title "Open Data v2"
  civic update bylaw-noise-curfew --set department=works --set priority=high
  civic update minutes-jan-session --set linked_records=bylaw-a,policy-b`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recordID := args[0]

		setValues, _ := cmd.Flags().GetStringArray("set")
		updates, err := parseSetFlags(setValues)
		if err != nil {
			fatalf("%v", err)
		}
		if cmd.Flags().Changed("status") {
			status, _ := cmd.Flags().GetString("status")
			updates["status"] = status
		}
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			updates["title"] = title
		}
		if cmd.Flags().Changed("content") {
			content, _ := cmd.Flags().GetString("content")
			updates["content"] = content
		}
		if len(updates) == 0 {
			fatalf("nothing to update (use --set field=value)")
		}

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		user := config.GetAuthor("")
		req := sagas.NewUpdateRequest(recordID, updates, user)
		req.IdempotencyKey = sagas.RequestKey(sagas.TypeUpdateRecord, recordID, updates)
		res, err := env.coord.Execute(rootCtx, env.defs[sagas.TypeUpdateRecord], req)
		if err != nil {
			fatalf("%v", err)
		}

		stored, err := env.store.GetRecord(rootCtx, recordID)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(stored)
			return
		}

		keys := make([]string, 0, len(updates))
		for k := range updates {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Printf("\n%s Updated record: %s\n", ui.RenderPass("✓"), recordID)
		fmt.Printf("  Fields: %s\n", strings.Join(keys, ", "))
		if stored != nil {
			fmt.Printf("  Status: %s\n", stored.Status)
			if stored.Commit != "" {
				fmt.Printf("  Commit: %s\n", shortCommit(stored.Commit))
			}
		}
		if res.Replayed {
			fmt.Printf("  %s\n", ui.RenderMuted("(replayed from a previous run)"))
		}
	},
}

// parseSetFlags turns repeated field=value pairs into an updates map.
// List fields split on commas.
func parseSetFlags(values []string) (map[string]interface{}, error) {
	updates := make(map[string]interface{}, len(values))
	for _, raw := range values {
		key, value, found := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected field=value", raw)
		}
		switch key {
		case "linked_records", "linked_geography_files", "attached_files":
			var list []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					list = append(list, item)
				}
			}
			updates[key] = list
		default:
			updates[key] = value
		}
	}
	return updates, nil
}

func init() {
	updateCmd.Flags().StringArray("set", nil, "Set a field: field=value (repeatable)")
	updateCmd.Flags().String("status", "", "Set the record status (workflow-checked)")
	updateCmd.Flags().String("title", "", "Set the record title")
	updateCmd.Flags().String("content", "", "Replace the record body")
	rootCmd.AddCommand(updateCmd)
}
