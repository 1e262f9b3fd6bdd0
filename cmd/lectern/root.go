package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/lectern/internal/config"
	"github.com/pders01/lectern/internal/debuglog"
	"github.com/pders01/lectern/internal/library"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	dbPath     string
	logLevel   string
	verbose    bool
	timeout    time.Duration

	cfg    *config.Config
	styles styles
	lib    *library.Library
}

// run executes one invocation and releases everything it opened, whether or
// not the command succeeded.
func run(args []string, stdout, stderr io.Writer) error {
	a := &app{styles: defaultStyles()}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if closeErr := a.teardown(); err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lectern",
		Short: "Read and search texts from many sources through one catalog",
		Long: `lectern merges the catalogs of bundled texts, remote content backends,
commentary sites and audio feeds into one deduplicated catalog, and
reads or searches any text in it.

Examples:
  lectern catalog
  lectern read KJV JN3
  lectern search "in the beginning" --text KJV --text WEB
  lectern import ./bundles/kjv.toml`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	cmd.SetVersionTemplate("lectern {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to configuration file")
	flags.StringVar(&a.dbPath, "db", "", "Path to database file (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error, off (overrides config)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log to stderr at debug level")
	flags.DurationVar(&a.timeout, "timeout", 2*time.Minute, "Overall time limit for the command")

	cmd.AddCommand(
		newVersionCmd(a),
		newGenerateConfigCmd(a),
		newProvidersCmd(a),
		newCatalogCmd(a),
		newInfoCmd(a),
		newReadCmd(a),
		newSearchCmd(a),
		newImportCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// setup loads the configuration and starts logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.styles = newStyles(cfg.UI.Colors)

	if a.verbose {
		debuglog.SetOutput(debuglog.LevelDebug, cmd.ErrOrStderr())
		return nil
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	return nil
}

// library builds the session library on first use.
func (a *app) library() (*library.Library, error) {
	if a.lib != nil {
		return a.lib, nil
	}
	lib, err := library.Build(a.cfg)
	if err != nil {
		return nil, err
	}
	a.lib = lib
	return lib, nil
}

func (a *app) teardown() error {
	var err error
	if a.lib != nil {
		err = a.lib.Close()
		a.lib = nil
	}
	_ = debuglog.Close()
	return err
}
