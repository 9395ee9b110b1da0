package theme

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

//go:embed starter.star
var starterScript []byte

// WriteStarterScript creates a commented project script at path. Existing files are never
// overwritten.
func WriteStarterScript(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if eris.Is(err, os.ErrExist) {
			return eris.Errorf("%s already exists", filepath.Base(path))
		}
		return eris.Wrapf(err, "failed to create %s", path)
	}

	_, err = file.Write(starterScript)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
