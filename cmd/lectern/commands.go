package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pders01/lectern/internal/config"
	"github.com/pders01/lectern/internal/provider"
	"github.com/pders01/lectern/internal/validation"
)

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), banner(a.styles))
		},
	}
}

func newGenerateConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config [path]",
		Short: "Write the default configuration file",
		Long: `Write the default configuration to path, or to
~/.config/lectern/config.toml when no path is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var userPath string
			if len(args) == 1 {
				userPath = args[0]
			}
			path, err := validation.NewPermissivePaths().ConfigPath(userPath)
			if err != nil {
				return err
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.styles.success.Render("Generated default configuration at: "+path))
			return nil
		},
	}
}

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			descriptors := lib.Providers()
			if len(descriptors) == 0 {
				fmt.Fprintln(out, a.styles.muted.Render("No providers configured."))
				return nil
			}
			fmt.Fprintln(out, a.styles.title.Render("Providers"))
			for _, d := range descriptors {
				fmt.Fprintf(out, "%2d  %-20s search %s\n", d.Order, d.Name, a.styles.flag(d.Capabilities.Search, "yes"))
			}
			return nil
		},
	}
}

func newCatalogCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List every text in the merged catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			entries, err := lib.Catalog(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			a.printCatalog(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the catalog as JSON")
	return cmd
}

func (a *app) printCatalog(out io.Writer, entries []provider.TextEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, a.styles.muted.Render("The catalog is empty."))
		return
	}
	fmt.Fprintln(out, a.styles.title.Render(fmt.Sprintf("%d texts", len(entries))))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Abbreviation
		}
		fmt.Fprintf(out, "%-10s %-8s %s %s  %s %s\n",
			a.styles.accent.Render(e.ID),
			e.Abbreviation,
			a.styles.flag(e.HasText, "T"),
			a.styles.flag(e.HasAudio, "A"),
			name,
			a.styles.muted.Render(languageOf(e)+" · "+strings.Join(e.Sources, ", ")),
		)
	}
}

func languageOf(e provider.TextEntry) string {
	switch {
	case e.LanguageName != "":
		return e.LanguageName
	case e.LanguageCode != "":
		return e.LanguageCode
	default:
		return "?"
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <text>",
		Short: "Show a text's details and section list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			entry, err := lib.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			infos, err := lib.LoadManifests(ctx, entry.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.styles.title.Render(entry.Name))
			a.field(out, "id", entry.ID)
			a.field(out, "abbr", entry.Abbreviation)
			a.field(out, "language", languageOf(entry))
			a.field(out, "provider", entry.Provider)
			a.field(out, "sources", strings.Join(entry.Sources, ", "))

			info := infos[entry.ID]
			if info == nil {
				fmt.Fprintln(out, a.styles.muted.Render("section list unavailable"))
				return nil
			}
			if len(info.DivisionNames) > 0 {
				a.field(out, "divisions", strings.Join(info.DivisionNames, ", "))
			} else if len(info.Divisions) > 0 {
				a.field(out, "divisions", strings.Join(info.Divisions, ", "))
			}
			a.field(out, "sections", fmt.Sprintf("%d", len(info.SectionIDs)))
			fmt.Fprintln(out, strings.Join(info.SectionIDs, " "))
			return nil
		},
	}
}

func (a *app) field(out io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintln(out, a.styles.label.Render(label)+value)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
