package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
	"github.com/RavenSong/textpattern-hive-framework/pkg/deps"
)

var fetchVendorCmd = &cobra.Command{
	Use:   "fetch-vendor",
	Short: "Downloads and unpacks vendored libraries",
	Long:  `Downloads and unpacks the third-party libraries listed in vendor.yml, for example the map library.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		pkg.PrintTask("Loading config")
		cfg, err := deps.LoadConfig(app.Root)
		if err != nil {
			return buildsys.ConfigError(err)
		}

		stamps, err := deps.LoadStamps(app.Root)
		if err != nil {
			return err
		}

		pkg.PrintTask("Downloading libraries")
		ctx := appContext(context.Background())

		fetcher := deps.NewFetcher(app.Root, update)
		changes, err := fetcher.Fetch(ctx, cfg, stamps)

		// keep the stamps of everything fetched before a failure
		if sErr := deps.SaveStamps(app.Root, stamps); sErr != nil {
			pkg.PrintError(sErr.Error())
		}
		if err != nil {
			return err
		}

		if len(changes) > 0 {
			pkg.PrintTask("Updating " + deps.ConfigFile)
			for name, checksum := range changes {
				pkg.PrintSubtask(name + ": " + checksum)
			}
			err = deps.UpdateChecksums(app.Root, changes)
			if err != nil {
				return err
			}
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchVendorCmd)
	fetchVendorCmd.Flags().BoolP("update", "u", false, "write the actual checksums to vendor.yml instead of failing")
}
