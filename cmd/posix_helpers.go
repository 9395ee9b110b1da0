package cmd

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// expandArgs resolves glob patterns on Windows where the shell runtime doesn't. Unmatched
// patterns are an error unless allowMissing is set.
func expandArgs(args []string, allowMissing bool) ([]string, error) {
	if runtime.GOOS != "windows" {
		return args, nil
	}

	items := make([]string, 0, len(args))
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", arg)
		}

		if len(matches) == 0 {
			if allowMissing {
				continue
			}
			return nil, eris.Errorf("pattern %s produced no matches", arg)
		}
		items = append(items, matches...)
	}
	return items, nil
}

var mvCmd = &cobra.Command{
	Use:    "mv <src>... <dest>",
	Short:  "Portable implementation of the POSIX mv command",
	Hidden: true,
	Args:   cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := filepath.Clean(args[len(args)-1])
		items, err := expandArgs(args[:len(args)-1], false)
		if err != nil {
			return err
		}

		info, err := os.Stat(dest)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
		}
		destIsDir := err == nil && info.IsDir()

		if len(items) > 1 && !destIsDir {
			return eris.Errorf("can't move multiple items to %s because it is not a directory", dest)
		}

		for _, item := range items {
			itemDest := dest
			if destIsDir {
				itemDest = filepath.Join(dest, filepath.Base(item))
			}

			err = os.Rename(item, itemDest)
			if err != nil {
				return eris.Wrapf(err, "failed to move %s to %s", item, itemDest)
			}
		}

		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:    "rm <path>...",
	Short:  "Portable implementation of the POSIX rm command",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, err := cmd.Flags().GetBool("recursive")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		items, err := expandArgs(args, force)
		if err != nil {
			return err
		}

		for _, item := range items {
			info, err := os.Lstat(item)
			if err != nil {
				if force && eris.Is(err, os.ErrNotExist) {
					continue
				}
				return eris.Wrapf(err, "could not stat %s", item)
			}

			if info.IsDir() && !recursive {
				return eris.Errorf("%s is a directory but -r wasn't passed", item)
			}

			err = os.RemoveAll(item)
			if err != nil {
				return eris.Wrapf(err, "could not delete %s", item)
			}
		}

		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:    "mkdir <path>...",
	Short:  "Portable implementation of the POSIX mkdir command",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		makeParents, err := cmd.Flags().GetBool("parents")
		if err != nil {
			return err
		}

		for _, item := range args {
			if makeParents {
				err = os.MkdirAll(item, 0o755)
			} else {
				err = os.Mkdir(item, 0o755)
			}

			if err != nil {
				return eris.Wrapf(err, "failed to create %s", item)
			}
		}

		return nil
	},
}

func init() {
	rmCmd.Flags().BoolP("recursive", "r", false, "recursively delete directories")
	rmCmd.Flags().BoolP("force", "f", false, "ignore missing files and folders")
	mkdirCmd.Flags().BoolP("parents", "p", false, "create parent directories as needed")

	for _, helper := range []*cobra.Command{mvCmd, rmCmd, mkdirCmd} {
		helper.Annotations = map[string]string{standalone: "true"}
		rootCmd.AddCommand(helper)
	}
}
