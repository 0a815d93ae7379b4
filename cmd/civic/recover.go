package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/saga"
	"github.com/CivicPress/civicpress-sub010/internal/template"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var recoverCmd = &cobra.Command{
	Use:     "recover",
	GroupID: "system",
	Short:   "Recover interrupted operations",
	Long: `Sweep the saga store for operations that died mid-flight: mark sagas
stuck in executing as failed, flag failed compensations for manual
intervention, and clear expired resource locks.

By default one sweep runs and reports. With --watch a daemon loop runs
until interrupted: a single instance per repository (flock on
.civic/daemon.lock), sweeping on the configured interval, logging to a
rotated file, and hot-reloading templates as they change on disk.

Examples:
  civic recover
  civic recover --watch
  civic recover --stuck-timeout 10m`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")

		env := mustOpenEnv(rootCtx)
		defer env.Close()

		rm := saga.NewRecoveryManager(env.stateStore, env.locks)
		rm.StuckTimeout = config.GetDuration("recovery.stuck-timeout")
		rm.Interval = config.GetDuration("recovery.interval")
		if cmd.Flags().Changed("stuck-timeout") {
			d, _ := cmd.Flags().GetDuration("stuck-timeout")
			rm.StuckTimeout = d
		}

		if watch {
			runRecoveryDaemon(env, rm)
			return
		}

		report, err := rm.RunOnce(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{
				"stuck_marked":  report.StuckMarked,
				"annotated":     report.Annotated,
				"locks_removed": report.LocksRemoved,
			})
			return
		}
		fmt.Printf("%s Recovery sweep complete\n", ui.RenderPass("✓"))
		fmt.Printf("  Stuck sagas marked failed:   %d\n", report.StuckMarked)
		fmt.Printf("  Flagged for manual review:   %d\n", report.Annotated)
		fmt.Printf("  Expired locks removed:       %d\n", report.LocksRemoved)
	},
}

// runRecoveryDaemon is the --watch loop: flock-guarded single instance,
// rotated log file, template hot reload, jittered start, sweep ticker.
func runRecoveryDaemon(env *appEnv, rm *saga.RecoveryManager) {
	lockPath := filepath.Join(env.root, ".civic", "daemon.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		fatalf("acquiring daemon lock: %v", err)
	}
	if !locked {
		fatalf("another civic daemon is already running for this repository")
	}
	defer func() { _ = lock.Unlock() }()

	logPath := config.GetString("log.file")
	if logPath == "" {
		logPath = filepath.Join(env.root, ".civic", "logs", "civicd.log")
	}
	logger := log.New(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    config.GetInt("log.max-size-mb"),
		MaxBackups: config.GetInt("log.max-backups"),
		MaxAge:     config.GetInt("log.max-age-days"),
	}, "", log.LstdFlags)
	rm.Logf = logger.Printf

	// Template edits take effect without a restart.
	watcher, err := template.NewWatcher(env.templates())
	if err != nil {
		logger.Printf("daemon: template watcher unavailable: %v", err)
	} else {
		watcher.Start(rootCtx)
		defer func() { _ = watcher.Close() }()
	}

	fmt.Printf("%s civic daemon watching %s (log: %s)\n", ui.RenderPass("✓"), env.root, logPath)
	logger.Printf("daemon: started for %s (interval %s, stuck timeout %s)",
		env.root, rm.Interval, rm.StuckTimeout)

	// Staggered start keeps fleets of repositories from sweeping in
	// lockstep.
	jitter := time.Duration(rand.Int63n(int64(5 * time.Second))) // #nosec G404 -- timing jitter, not security
	select {
	case <-rootCtx.Done():
		logger.Printf("daemon: stopped")
		return
	case <-time.After(jitter):
	}

	if err := rm.Run(rootCtx); err != nil && rootCtx.Err() == nil {
		logger.Printf("daemon: loop ended: %v", err)
		fatalf("%v", err)
	}
	logger.Printf("daemon: stopped")
	fmt.Fprintln(os.Stderr, "civic daemon stopped")
}

func init() {
	recoverCmd.Flags().Bool("watch", false, "Run as a daemon, sweeping on the configured interval")
	recoverCmd.Flags().Duration("stuck-timeout", saga.DefaultStuckTimeout, "Age after which an executing saga counts as stuck")
	rootCmd.AddCommand(recoverCmd)
}
