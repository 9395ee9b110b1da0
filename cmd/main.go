// Package cmd implements the hivebuild command line interface
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
	"github.com/RavenSong/textpattern-hive-framework/pkg/config"
)

// standalone marks commands that don't need a project (the posix helpers)
const standalone = "standalone"

type appState struct {
	Root     string
	Settings *config.Settings
	Logger   zerolog.Logger
	DryRun   bool
}

var app = appState{
	Logger: zerolog.New(NewConsoleWriter(os.Stderr)),
}

var rootCmd = &cobra.Command{
	Use:   "hivebuild",
	Short: "Asset pipeline for the Hive Textpattern theme",
	Long: `hivebuild compiles, bundles, lints and copies the assets of the Hive Textpattern theme
into a versioned theme directory. Without a command it watches the sources and rebuilds
whatever changed.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[standalone] != "" {
		return nil
	}

	flags := cmd.Root().PersistentFlags()
	root, err := flags.GetString("root")
	if err != nil {
		return err
	}

	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return eris.Wrap(err, "failed to retrieve the current working directory")
		}

		root = wd
		if cmd.Name() != "init" {
			root, err = pkg.FindProjectRoot(wd)
			if err != nil {
				return buildsys.ConfigError(err)
			}
		}
	}

	app.Root, err = filepath.Abs(root)
	if err != nil {
		return eris.Wrapf(err, "failed to resolve %s", root)
	}

	settings, err := config.Load(app.Root)
	if err != nil {
		return buildsys.ConfigError(err)
	}

	if flags.Changed("log-level") {
		level, err := flags.GetString("log-level")
		if err != nil {
			return err
		}
		if err := settings.SetLogLevel(level); err != nil {
			return buildsys.ConfigError(err)
		}
	}
	if flags.Changed("log-json") {
		settings.Log.JSON, err = flags.GetBool("log-json")
		if err != nil {
			return err
		}
	}

	app.DryRun, err = flags.GetBool("dry")
	if err != nil {
		return err
	}

	app.Settings = settings
	app.Logger = newLogger(settings)

	// the shell runtime routes mv, rm and mkdir to our own implementation
	if self, err := os.Executable(); err == nil {
		buildsys.HelperBinary = self
	}

	return nil
}

func newLogger(settings *config.Settings) zerolog.Logger {
	var logger zerolog.Logger
	if settings.Log.JSON {
		zerolog.ErrorMarshalFunc = func(err error) interface{} {
			return eris.ToJSON(err, debugEnabled())
		}
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(NewConsoleWriter(os.Stderr))
	}

	return logger.Level(settings.LogLevel())
}

// appContext returns a context that carries the configured logger
func appContext(parent context.Context) context.Context {
	return buildsys.WithLogger(parent, &app.Logger)
}

func init() {
	rootCmd.PersistentPreRunE = setup
	// watching is the default
	rootCmd.RunE = runWatch

	flags := rootCmd.PersistentFlags()
	flags.String("root", "", "project root (defaults to the closest directory containing hive.star or package.json)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log JSON lines instead of console messages")
	flags.BoolP("dry", "n", false, "dry run; only print what would run, don't execute anything")
}

// Execute runs the root command and exits with the status of the first failing stage
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		app.Logger.Error().Err(err).Msg("hivebuild failed")
		os.Exit(buildsys.ExitCode(err))
	}
}
