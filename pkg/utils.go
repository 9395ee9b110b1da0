package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// ProjectMarkers are the files that identify a theme project directory
var ProjectMarkers = []string{"hive.star", "package.json"}

// FindProjectRoot walks up from start until it finds a directory containing one of
// ProjectMarkers.
func FindProjectRoot(start string) (string, error) {
	mypath, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrap(err, "Failed to resolve start directory")
	}

	for {
		for _, marker := range ProjectMarkers {
			_, err := os.Stat(filepath.Join(mypath, marker))
			if err == nil {
				return mypath, nil
			}

			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrap(err, "Error ocurred while searching for project root")
			}
		}

		nextPath := filepath.Dir(mypath)
		if mypath == nextPath {
			break
		}
		mypath = nextPath
	}

	return "", eris.Errorf("Project root not found (looked for %v above %s)", ProjectMarkers, start)
}

// WriteFileAtomic writes data to a temporary file next to dest and renames it into place so
// readers never observe partial output.
func WriteFileAtomic(dest string, data []byte, perm os.FileMode) error {
	err := os.MkdirAll(filepath.Dir(dest), 0o770)
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory for %s", dest)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "Failed to create temporary file for %s", dest)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(perm)
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "Failed to write %s", dest)
	}

	err = os.Rename(tmpName, dest)
	if err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "Failed to move %s into place", dest)
	}
	return nil
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
