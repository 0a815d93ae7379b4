package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
	"github.com/CivicPress/civicpress-sub010/internal/sagas"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

// StatusOutput is the complete status snapshot.
type StatusOutput struct {
	Records    map[string]int           `json:"records"`
	Drafts     int                      `json:"drafts"`
	Sagas      map[string]int           `json:"sagas"`
	Operations map[string]OperationStat `json:"operations,omitempty"`
	Stuck      []SagaSummary            `json:"stuck,omitempty"`
	Failed     []SagaSummary            `json:"failed,omitempty"`
	Locks      []LockSummary            `json:"locks,omitempty"`
}

// OperationStat aggregates recent saga runs of one type.
type OperationStat struct {
	Runs        int    `json:"runs"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Compensated int    `json:"compensated"`
	AvgDuration string `json:"avg_duration,omitempty"`
}

// SagaSummary is one saga instance worth showing in the report.
type SagaSummary struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Started string `json:"started"`
	Age     string `json:"age"`
}

// LockSummary is one resource lock row.
type LockSummary struct {
	Resource string `json:"resource"`
	Holder   string `json:"holder"`
	Expires  string `json:"expires"`
	Expired  bool   `json:"expired"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "views",
	Short:   "Show repository and saga state overview",
	Long: `Show a snapshot of the repository: record counts by status, recent
operation outcomes, sagas stuck mid-execution, failed sagas awaiting
attention, and the resource lock table.

Similar to 'git status' for your civic repository: one command answers
"is everything healthy?".

Examples:
  civic status
  civic status --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := mustOpenEnv(rootCtx)
		defer env.Close()

		out := &StatusOutput{
			Records: make(map[string]int),
			Sagas:   make(map[string]int),
		}

		recs, err := env.store.ListRecords(rootCtx, records.Filter{})
		if err != nil {
			fatalf("%v", err)
		}
		for _, rec := range recs {
			out.Records[rec.Status]++
		}
		drafts, err := env.store.ListDrafts(rootCtx, records.Filter{})
		if err != nil {
			fatalf("%v", err)
		}
		out.Drafts = len(drafts)

		counts, err := env.stateStore.CountByStatus(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		for status, n := range counts {
			out.Sagas[string(status)] = n
		}

		out.Operations = make(map[string]OperationStat)
		for _, sagaType := range []string{
			sagas.TypeCreateRecord, sagas.TypeUpdateRecord,
			sagas.TypeArchiveRecord, sagas.TypePublishDraft,
		} {
			instances, err := env.stateStore.ListByType(rootCtx, sagaType, 100)
			if err != nil {
				fatalf("%v", err)
			}
			if len(instances) == 0 {
				continue
			}
			out.Operations[sagaType] = summarizeRuns(instances)
		}

		stuckTimeout := config.GetDuration("recovery.stuck-timeout")
		stuck, err := env.stateStore.GetStuckSagas(rootCtx, stuckTimeout)
		if err != nil {
			fatalf("%v", err)
		}
		out.Stuck = sagaSummaries(stuck)

		failed, err := env.stateStore.GetFailedSagas(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		out.Failed = sagaSummaries(failed)

		locks, err := env.locks.ListLocks(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		now := time.Now().UTC()
		for _, lock := range locks {
			out.Locks = append(out.Locks, LockSummary{
				Resource: lock.ResourceKey,
				Holder:   lock.SagaID,
				Expires:  lock.ExpiresAt.UTC().Format(time.RFC3339),
				Expired:  lock.Expired(now),
			})
		}

		if jsonOutput {
			outputJSON(out)
			return
		}
		printStatus(out, stuckTimeout)
	},
}

func summarizeRuns(instances []*saga.Instance) OperationStat {
	var stat OperationStat
	var total time.Duration
	var timed int
	for _, in := range instances {
		stat.Runs++
		switch in.Status {
		case saga.StatusCompleted:
			stat.Succeeded++
		case saga.StatusFailed:
			stat.Failed++
		case saga.StatusCompensated:
			stat.Compensated++
		}
		if in.CompletedAt != nil {
			total += in.CompletedAt.Sub(in.StartedAt)
			timed++
		}
	}
	if timed > 0 {
		stat.AvgDuration = (total / time.Duration(timed)).Round(time.Millisecond).String()
	}
	return stat
}

func sagaSummaries(instances []*saga.Instance) []SagaSummary {
	now := time.Now().UTC()
	out := make([]SagaSummary, 0, len(instances))
	for _, in := range instances {
		out = append(out, SagaSummary{
			ID:      in.ID,
			Type:    in.SagaType,
			Status:  string(in.Status),
			Error:   in.Error,
			Started: in.StartedAt.UTC().Format(time.RFC3339),
			Age:     now.Sub(in.StartedAt).Round(time.Second).String(),
		})
	}
	return out
}

func printStatus(out *StatusOutput, stuckTimeout time.Duration) {
	fmt.Printf("\n%s Civic Repository Status\n\n", ui.RenderAccent("▣"))

	totalRecords := 0
	for _, n := range out.Records {
		totalRecords += n
	}
	fmt.Printf("Records:\n")
	fmt.Printf("  Total:                  %d\n", totalRecords)
	for _, status := range config.GetRecordStatuses() {
		if n, ok := out.Records[status]; ok {
			fmt.Printf("  %-22s  %d\n", status+":", n)
		}
	}
	if out.Drafts > 0 {
		fmt.Printf("  %-22s  %s\n", "drafts:", ui.RenderWarn(fmt.Sprintf("%d", out.Drafts)))
	}

	if len(out.Operations) > 0 {
		fmt.Printf("\nRecent operations:\n")
		for _, sagaType := range []string{
			sagas.TypeCreateRecord, sagas.TypeUpdateRecord,
			sagas.TypeArchiveRecord, sagas.TypePublishDraft,
		} {
			stat, ok := out.Operations[sagaType]
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %-14s %d run(s): %s ok", sagaType, stat.Runs,
				ui.RenderPass(fmt.Sprintf("%d", stat.Succeeded)))
			if stat.Failed > 0 {
				line += fmt.Sprintf(", %s failed", ui.RenderFail(fmt.Sprintf("%d", stat.Failed)))
			}
			if stat.Compensated > 0 {
				line += fmt.Sprintf(", %s rolled back", ui.RenderWarn(fmt.Sprintf("%d", stat.Compensated)))
			}
			if stat.AvgDuration != "" {
				line += fmt.Sprintf("  (avg %s)", stat.AvgDuration)
			}
			fmt.Println(line)
		}
	}

	if len(out.Stuck) > 0 {
		fmt.Printf("\n%s Stuck sagas (executing > %s):\n", ui.RenderWarn("⚠"), stuckTimeout)
		for _, s := range out.Stuck {
			fmt.Printf("  %s  %s  started %s (%s ago)\n", s.ID, s.Type, s.Started, s.Age)
		}
		fmt.Printf("  Run %s to mark and release them.\n", ui.RenderAccent("civic recover"))
	}

	if len(out.Failed) > 0 {
		fmt.Printf("\n%s Failed sagas:\n", ui.RenderFail("✗"))
		for i, s := range out.Failed {
			if i == 5 {
				fmt.Printf("  ... and %d more (use --json for all)\n", len(out.Failed)-i)
				break
			}
			fmt.Printf("  %s  %s  %s\n", s.ID, s.Type, s.Error)
		}
	}

	if len(out.Locks) > 0 {
		fmt.Printf("\nResource locks:\n")
		for _, l := range out.Locks {
			marker := ui.RenderPass("held")
			if l.Expired {
				marker = ui.RenderMuted("expired")
			}
			fmt.Printf("  %-28s %s  by %s  until %s\n", l.Resource, marker, l.Holder, l.Expires)
		}
	}

	if len(out.Stuck) == 0 && len(out.Failed) == 0 {
		fmt.Printf("\n%s All operations healthy.\n", ui.RenderPass("✓"))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
