package cmd

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

var checkToolsCmd = &cobra.Command{
	Use:   "check-tools",
	Short: "Checks that the external tools are installed",
	Long: `Resolves the programs used by the sass, stylelint and jshint commands of the project.
Programs installed with npm (node_modules/.bin) are preferred over the ones in PATH.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		options, _ := parseOptions(args)
		pipeline, err := loadPipeline(appContext(context.Background()), options)
		if err != nil {
			return err
		}

		statuses, err := pipeline.CheckTools()
		if err != nil {
			return buildsys.ConfigError(err)
		}

		missing := make([]string, 0)
		for _, status := range statuses {
			switch {
			case !status.Found:
				pkg.PrintError(fmt.Sprintf("%s: %s not found", status.Name, status.Program))
				missing = append(missing, status.Name)
			case status.Path == "":
				pkg.PrintSubtask(fmt.Sprintf("%s: shell builtin %s", status.Name, status.Program))
			default:
				pkg.PrintSubtask(fmt.Sprintf("%s: %s", status.Name, status.Path))
			}
		}

		if len(missing) > 0 {
			return buildsys.ConfigError(eris.Errorf("missing tools: %v (try npm install)", missing))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkToolsCmd)
}
