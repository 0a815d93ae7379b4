package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/git"
	"github.com/CivicPress/civicpress-sub010/internal/storage/sqlite"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Initialize a civic repository in the current directory",
	Long: `Initialize a civic repository in the current directory by creating the
.civic/ directory (configuration, workflow catalogue, database, hooks,
logs), the record directories (records/, archive/), and the stock
templates, then initializing git if needed.

Running init again is safe: existing configuration, templates, and
records are preserved, and only missing pieces are created.

Examples:
  civic init                 # initialize here
  civic init --skip-git      # do not run git init
  civic init --quiet         # suppress the report`,
	Run: func(cmd *cobra.Command, _ []string) {
		quiet, _ := cmd.Flags().GetBool("quiet")
		skipGit, _ := cmd.Flags().GetBool("skip-git")

		cwd, err := os.Getwd()
		if err != nil {
			fatalf("failed to get current directory: %v", err)
		}

		// Prevent nested repositories: init inside .civic/ is always a
		// mistake.
		cleaned := filepath.Clean(cwd)
		sep := string(filepath.Separator)
		if strings.Contains(cleaned, sep+".civic"+sep) || strings.HasSuffix(cleaned, sep+".civic") {
			fatalf("cannot initialize inside a .civic directory: %s", cwd)
		}

		root := cwd
		civicDir := filepath.Join(root, ".civic")
		dbPath := filepath.Join(civicDir, "civic.db")
		templatesDir := filepath.Join(root, config.GetString("templates.dir"))

		res := ui.InitResult{
			Root:         root,
			DBPath:       dbPath,
			ConfigPath:   filepath.Join(civicDir, "config.yml"),
			WorkflowPath: filepath.Join(civicDir, "workflows.toml"),
			TemplatesDir: templatesDir,
			RecordTypes:  config.GetRecordTypes(),
		}
		if _, err := os.Stat(dbPath); err == nil {
			res.Reinitialized = true
		}

		warnf := func(format string, args ...interface{}) {
			res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
		}

		for _, dir := range []string{
			civicDir,
			filepath.Join(civicDir, "templates"),
			filepath.Join(civicDir, "hooks"),
			filepath.Join(civicDir, "logs"),
			filepath.Join(root, "records"),
			filepath.Join(root, "archive"),
			templatesDir,
		} {
			if _, err := os.Stat(dir); err == nil {
				continue
			}
			if err := os.MkdirAll(dir, 0750); err != nil {
				fatalf("failed to create %s: %v", dir, err)
			}
			rel, relErr := filepath.Rel(root, dir)
			if relErr != nil {
				rel = dir
			}
			res.CreatedDirs = append(res.CreatedDirs, rel+"/")
		}

		// Scaffolding is warn-and-continue: a writable database matters
		// more than a missing comment template.
		if err := createConfigYaml(civicDir, Version); err != nil {
			warnf("config: %v", err)
		}
		if err := createWorkflowsToml(civicDir); err != nil {
			warnf("workflows: %v", err)
		}
		if err := createReadme(root); err != nil {
			warnf("readme: %v", err)
		}
		if _, err := createDefaultTemplates(templatesDir); err != nil {
			warnf("templates: %v", err)
		}

		if !skipGit {
			repo := git.New(root)
			if !repo.IsRepo() {
				if err := repo.Init(rootCtx); err != nil {
					warnf("git init: %v", err)
				} else {
					res.GitInitialized = true
				}
			}
		}

		// Open the database so the schema migrates now, not on first use.
		store, err := sqlite.New(rootCtx, dbPath)
		if err != nil {
			fatalf("failed to create database: %v", err)
		}
		if err := store.Close(); err != nil {
			warnf("closing database: %v", err)
		}

		res.QuickstartCommands = []string{
			`civic create policy "Open Data Policy"`,
			"civic list",
			"civic status",
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		if quiet {
			return
		}
		fmt.Println()
		fmt.Println(ui.RenderInitReport(res, ui.GetWidth()))
		fmt.Println()
	},
}

func init() {
	initCmd.Flags().BoolP("quiet", "q", false, "Suppress output (quiet mode)")
	initCmd.Flags().Bool("skip-git", false, "Skip git repository initialization")
	rootCmd.AddCommand(initCmd)
}
