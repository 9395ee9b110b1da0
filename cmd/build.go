package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
	"github.com/RavenSong/textpattern-hive-framework/pkg/theme"
)

// productionTasks load the project script with mode=production unless mode is passed
var productionTasks = map[string]bool{
	"build-production": true,
	"css-production":   true,
}

// parseOptions splits key=value arguments from the remaining ones
func parseOptions(args []string) (map[string]string, []string) {
	options := make(map[string]string)
	rest := make([]string, 0, len(args))
	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > 0 {
			options[part[:pos]] = part[pos+1:]
		} else {
			rest = append(rest, part)
		}
	}
	return options, rest
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(appContext(context.Background()), os.Interrupt, syscall.SIGTERM)
}

func loadPipeline(ctx context.Context, options map[string]string) (*theme.Pipeline, error) {
	return theme.Load(ctx, theme.LoadOptions{
		Root:    app.Root,
		Script:  app.Settings.Script,
		Package: app.Settings.Package,
		Options: options,
	})
}

func runTasks(names []string, options map[string]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	for _, name := range names {
		if productionTasks[name] {
			if _, ok := options["mode"]; !ok {
				options["mode"] = "production"
			}
		}
	}

	ctx = buildsys.WithLogFields(ctx, map[string]string{"build": nanoid.New()})
	pipeline, err := loadPipeline(ctx, options)
	if err != nil {
		return err
	}

	tasks := pipeline.Tasks()
	for _, name := range names {
		if _, ok := tasks[name]; !ok {
			return buildsys.ConfigError(eris.Errorf("task %s not found, run \"hivebuild tasks\" for a list", name))
		}
	}

	buildsys.Log(ctx).Info().Msgf("Building %s %s into %s", pipeline.Project.Theme, pipeline.Paths.Version, pipeline.Paths.Rel(pipeline.Paths.ThemeDir))
	for _, name := range names {
		err = buildsys.RunTask(ctx, pipeline.Paths.Root, name, tasks, app.DryRun)
		if err != nil {
			return err
		}
	}

	buildsys.Log(ctx).Info().Msg("Done")
	return nil
}

func taskCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [key=value...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			options, rest := parseOptions(args)
			if len(rest) > 0 {
				return buildsys.ConfigError(eris.Errorf("unexpected arguments %v, options have to be passed as key=value", rest))
			}
			return runTasks([]string{name}, options)
		},
	}
}

var runCmd = &cobra.Command{
	Use:   "run <task>... [key=value...]",
	Short: "Runs individual pipeline tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, names := parseOptions(args)
		if len(names) == 0 {
			return buildsys.ConfigError(eris.New("no task given"))
		}
		return runTasks(names, options)
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Lists the available tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := appContext(context.Background())
		options, _ := parseOptions(args)
		pipeline, err := loadPipeline(ctx, options)
		if err != nil {
			return err
		}

		tasks := pipeline.Tasks()
		maxNameLen := 0
		sortedNames := make([]string, 0, len(tasks))
		for name, task := range tasks {
			if task.Hidden {
				continue
			}
			if len(name) > maxNameLen {
				maxNameLen = len(name)
			}
			sortedNames = append(sortedNames, name)
		}
		sort.Strings(sortedNames)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Available tasks:")
		lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
		for _, name := range sortedNames {
			fmt.Fprintf(out, lineFmt, name+":", tasks[name].Desc)
		}
		return nil
	},
}

func runWatch(cmd *cobra.Command, args []string) error {
	options, rest := parseOptions(args)
	if len(rest) > 0 {
		return buildsys.ConfigError(eris.Errorf("unknown command %q", rest[0]))
	}

	ctx, cancel := signalContext()
	defer cancel()

	pipeline, err := loadPipeline(ctx, options)
	if err != nil {
		return err
	}

	if app.DryRun {
		return eris.New("watch mode doesn't support dry runs")
	}

	watcher := theme.NewWatcher(pipeline, app.Settings.Debounce())
	return watcher.Watch(ctx)
}

var watchCmd = &cobra.Command{
	Use:   "watch [key=value...]",
	Short: "Watches the sources and rebuilds what changed (default)",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(taskCommand("build", "Builds the theme for development"))
	rootCmd.AddCommand(taskCommand("build-production", "Builds the theme with purged stylesheets"))
	rootCmd.AddCommand(taskCommand("css", "Lints, compiles and post-processes the stylesheets"))
	rootCmd.AddCommand(taskCommand("css-production", "Like css, but removes unused selectors"))
	rootCmd.AddCommand(taskCommand("html", "Copies the templates and images"))
	rootCmd.AddCommand(runCmd, tasksCmd, watchCmd)
}
