package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/CivicPress/civicpress-sub010/internal/config"
)

// createInput holds the create command inputs, whether they came from
// flags or from the interactive form.
type createInput struct {
	Type     string
	Title    string
	Template string
	Author   string
	Draft    bool
}

// runCreateForm fills in with an interactive form. A user abort exits
// quietly with status 0.
func runCreateForm(in *createInput) error {
	typeOptions := make([]huh.Option[string], 0, len(config.GetRecordTypes()))
	for _, t := range config.GetRecordTypes() {
		typeOptions = append(typeOptions, huh.NewOption(t, t))
	}
	if in.Template == "" {
		in.Template = "default"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Record type").
				Description("What kind of record is this?").
				Options(typeOptions...).
				Value(&in.Type),

			huh.NewInput().
				Title("Title").
				Description("The record title (required)").
				Placeholder("e.g., Open Data Policy").
				Value(&in.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					if len(s) > 200 {
						return fmt.Errorf("title must be 200 characters or less")
					}
					return nil
				}),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Author").
				Description("Who is creating this record? (blank: config or git user)").
				Placeholder("e.g., Ada Lovelace").
				Value(&in.Author),

			huh.NewInput().
				Title("Template").
				Description("Template name under templates/<type>/").
				Value(&in.Template),

			huh.NewConfirm().
				Title("Store as draft?").
				Description("Drafts stay in the database until published.").
				Affirmative("Draft").
				Negative("Record").
				Value(&in.Draft),
		),
	)

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			fmt.Fprintln(os.Stderr, "Record creation canceled.")
			os.Exit(0)
		}
		return fmt.Errorf("form error: %w", err)
	}
	return nil
}
