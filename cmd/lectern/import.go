package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pders01/lectern/internal/validation"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle|dir>...",
		Short: "Import text bundles into the local database",
		Long: `Import TOML or YAML text bundles into the local database. A directory
imports every *.toml, *.yaml and *.yml file below it, subdirectories included.
Importing a text again replaces it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Providers.Local {
				return fmt.Errorf("the local provider is disabled in the configuration")
			}
			lib, err := a.library()
			if err != nil {
				return err
			}
			lp, ok := lib.Local()
			if !ok {
				return fmt.Errorf("no local provider registered")
			}

			paths := validation.NewPermissivePaths()
			out := cmd.OutOrStdout()
			imported := 0
			for _, arg := range args {
				path, err := paths.Resolve(arg)
				if err != nil {
					return err
				}
				info, err := os.Stat(path)
				if err != nil {
					return err
				}

				if info.IsDir() {
					ids, err := lp.ImportDir(path)
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(out, a.styles.success.Render("imported "+id))
					}
					imported += len(ids)
					continue
				}

				b, err := lp.ImportFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, a.styles.success.Render(fmt.Sprintf("imported %s (%d sections)", b.ID, len(b.Sections))))
				imported++
			}
			fmt.Fprintln(out, a.styles.muted.Render(fmt.Sprintf("%d bundles imported", imported)))
			return nil
		},
	}
}
