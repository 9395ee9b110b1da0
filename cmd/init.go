package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
	"github.com/RavenSong/textpattern-hive-framework/pkg/theme"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Writes a commented project script",
	Long:  `Creates the project script (hive.star by default) in the project root. Existing files are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(app.Root, app.Settings.Script)
		err := theme.WriteStarterScript(path)
		if err != nil {
			return buildsys.ConfigError(err)
		}

		pkg.PrintTask("Created " + path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
