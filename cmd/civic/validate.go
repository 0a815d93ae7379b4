package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CivicPress/civicpress-sub010/internal/config"
	"github.com/CivicPress/civicpress-sub010/internal/records"
	"github.com/CivicPress/civicpress-sub010/internal/schema"
	"github.com/CivicPress/civicpress-sub010/internal/template"
	"github.com/CivicPress/civicpress-sub010/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:     "validate <path>|<id>",
	GroupID: "views",
	Short:   "Validate a record file or stored record",
	Long: `Validate a record against the schema for its type: required fields,
enum membership, formats (dates, email, semver), and business rules.
Enum mistakes get a "did you mean" suggestion.

The argument is a file path when it names an existing file, otherwise a
record id looked up in the metadata store. With --template the record is
additionally checked against a template's required fields, sections,
and validation rules.

Exit status is 1 when any error-severity diagnostic is found.

Examples:
  civic validate records/policy/policy-open-data.md
  civic validate policy-open-data
  civic validate policy-open-data --template default`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target := args[0]
		templateName, _ := cmd.Flags().GetString("template")

		rec, err := loadValidationTarget(target)
		if err != nil {
			fatalf("%v", err)
		}

		validator := schema.New(config.GetRecordTypes(), statusCatalogue())
		result := validator.ValidateRecord(rec, schema.Options{})

		if templateName != "" {
			diags, err := templateDiagnostics(rec, templateName)
			if err != nil {
				fatalf("%v", err)
			}
			for _, d := range diags {
				switch d.Severity {
				case schema.SeverityError:
					result.Errors = append(result.Errors, d)
				case schema.SeverityWarning:
					result.Warnings = append(result.Warnings, d)
				default:
					result.Info = append(result.Info, d)
				}
			}
			result.Valid = len(result.Errors) == 0
		}

		if jsonOutput {
			outputJSON(result)
			if !result.Valid {
				os.Exit(1)
			}
			return
		}

		printDiagnostics(rec.ID, result)
		if !result.Valid {
			os.Exit(1)
		}
	},
}

// loadValidationTarget resolves the argument: an existing file parses
// directly, anything else is a metadata store lookup (drafts included).
func loadValidationTarget(target string) (*records.Record, error) {
	if data, err := os.ReadFile(target); err == nil {
		rec, perr := records.Parse(string(data), target)
		if perr != nil {
			return nil, fmt.Errorf("%s: %w", target, perr)
		}
		return rec, nil
	}

	env, err := openEnv(rootCtx)
	if err != nil {
		return nil, err
	}
	defer env.Close()

	rec, err := env.store.GetRecord(rootCtx, target)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec, err = env.store.GetDraft(rootCtx, target)
		if err != nil {
			return nil, err
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("record not found: %s", target)
	}
	return rec, nil
}

// templateDiagnostics runs a template's own checks: required fields and
// the declared validation rules.
func templateDiagnostics(rec *records.Record, templateName string) ([]schema.Diagnostic, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := config.FindRoot(cwd)
	if err != nil {
		return nil, fmt.Errorf("--template needs a civic repository for the template directories: %w", err)
	}
	env, err := openEnvAt(rootCtx, root)
	if err != nil {
		return nil, err
	}
	defer env.Close()

	tmpl, err := env.templates().Load(rec.Type, templateName)
	if err != nil {
		return nil, err
	}

	header := schema.HeaderMap(rec)
	var diags []schema.Diagnostic
	for _, field := range template.MissingRequired(tmpl, header) {
		diags = append(diags, schema.Diagnostic{
			Severity: schema.SeverityError,
			Code:     schema.CodeRequired,
			Field:    field,
			Message:  fmt.Sprintf("template %s/%s requires field '%s'", rec.Type, templateName, field),
		})
	}
	diags = append(diags, env.templates().EvaluateRules(tmpl, header, rec.Content)...)
	return diags, nil
}

func printDiagnostics(id string, result *schema.Result) {
	if result.Valid && len(result.Warnings) == 0 && len(result.Info) == 0 {
		fmt.Printf("%s %s is valid\n", ui.RenderPass("✓"), id)
		return
	}

	if result.Valid {
		fmt.Printf("%s %s is valid (%d warning(s))\n", ui.RenderPass("✓"), id, len(result.Warnings))
	} else {
		fmt.Printf("%s %s is invalid: %d error(s), %d warning(s)\n",
			ui.RenderFail("✗"), id, len(result.Errors), len(result.Warnings))
	}
	fmt.Println()

	printDiagnosticGroup(ui.RenderFail("✗"), result.Errors)
	printDiagnosticGroup(ui.RenderWarn("⚠"), result.Warnings)
	printDiagnosticGroup(ui.RenderMuted("·"), result.Info)
}

func printDiagnosticGroup(marker string, diags []schema.Diagnostic) {
	for _, d := range diags {
		field := d.Field
		if field == "" {
			field = "-"
		}
		fmt.Printf("  %s [%s] %s: %s\n", marker, d.Code, field, d.Message)
		if d.Suggestion != "" {
			fmt.Printf("      %s\n", ui.RenderMuted(d.Suggestion))
		}
	}
}

func init() {
	validateCmd.Flags().String("template", "", "Also check against a template's rules")
	rootCmd.AddCommand(validateCmd)
}
