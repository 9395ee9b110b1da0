package deps

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

// extractFunc unpacks the archive in f (size bytes) into dest
type extractFunc func(f *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error

func extractorFor(url string) (extractFunc, error) {
	// ignore query strings and fragments
	name := url
	if pos := strings.IndexAny(name, "?#"); pos > -1 {
		name = name[:pos]
	}

	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return func(f *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return err
			}
			defer reader.Close()

			return extractTar(reader, f, bar, dest, strip)
		}, nil
	case strings.HasSuffix(name, ".tar.bz2"):
		return func(f *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error {
			return extractTar(bzip2.NewReader(f), f, bar, dest, strip)
		}, nil
	case strings.HasSuffix(name, ".tar.xz"):
		return func(f *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return err
			}

			return extractTar(reader, f, bar, dest, strip)
		}, nil
	}

	return nil, eris.Errorf("archive format of %s is not supported", url)
}

// entryPath strips strip elements from the archive entry name and resolves it below dest.
// An empty result means the entry has been stripped away.
func entryPath(dest, name string, strip int) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	parts := strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
	if len(parts) <= strip {
		return "", nil
	}

	rel := strings.Join(parts[strip:], "/")
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", eris.Errorf("archive entry %s points outside of the destination", name)
	}
	return filepath.Join(dest, filepath.FromSlash(rel)), nil
}

func writeEntry(dest string, r io.Reader, mode os.FileMode) error {
	err := os.MkdirAll(filepath.Dir(dest), 0o770)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory %s", filepath.Dir(dest))
	}

	handle, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode|0o600)
	if err != nil {
		return eris.Wrapf(err, "failed to create file %s", dest)
	}

	_, err = io.Copy(handle, r)
	if closeErr := handle.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return eris.Wrapf(err, "failed to write extracted file %s", dest)
	}
	return nil
}

func updateBar(f *os.File, bar *progressbar.ProgressBar) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err == nil {
		_ = bar.Set64(pos)
	}
}

func extractZip(f *os.File, size int64, bar *progressbar.ProgressBar, dest string, strip int) error {
	archive, err := zip.NewReader(f, size)
	if err != nil {
		return eris.Wrap(err, "failed to open zip archive")
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		target, err := entryPath(dest, item.Name, strip)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		reader, err := item.Open()
		if err != nil {
			return eris.Wrapf(err, "failed to open archive entry %s", item.Name)
		}

		// zip files rarely carry useful permissions
		err = writeEntry(target, reader, item.Mode().Perm()|0o644)
		reader.Close()
		if err != nil {
			return err
		}

		updateBar(f, bar)
	}

	return nil
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, dest string, strip int) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return eris.Wrap(err, "failed to read archive entry")
		}

		target, err := entryPath(dest, item.Name, strip)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		switch item.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0o770)
			if err != nil {
				return eris.Wrapf(err, "failed to create directory %s", target)
			}
		case tar.TypeSymlink:
			link := filepath.FromSlash(item.Linkname)
			resolved := filepath.Join(filepath.Dir(target), link)
			if filepath.IsAbs(link) || !strings.HasPrefix(resolved, dest+string(filepath.Separator)) {
				return eris.Errorf("symlink %s points outside of the destination", item.Name)
			}

			err = os.MkdirAll(filepath.Dir(target), 0o770)
			if err == nil {
				err = os.Symlink(link, target)
			}
			if err != nil {
				return eris.Wrapf(err, "failed to create symlink %s pointing to %s", target, item.Linkname)
			}
		case tar.TypeReg:
			err = writeEntry(target, archive, item.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
		}

		updateBar(f, bar)
	}

	return nil
}
