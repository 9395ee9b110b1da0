package theme

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

// Expand returns the files below root matching any of patterns as sorted, slash separated
// relative paths. Patterns starting with ! remove matches.
func Expand(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	found := make(map[string]bool)

	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			continue
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid pattern %s", pattern)
		}
		for _, match := range matches {
			info, err := fs.Stat(fsys, match)
			if err == nil && info.Mode().IsRegular() {
				found[match] = true
			}
		}
	}

	result := make([]string, 0, len(found))
	for match := range found {
		excluded, err := matchAny(patternsWithPrefix(patterns, "!"), match)
		if err != nil {
			return nil, err
		}
		if !excluded {
			result = append(result, match)
		}
	}

	sort.Strings(result)
	return result, nil
}

func patternsWithPrefix(patterns []string, prefix string) []string {
	result := make([]string, 0)
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, prefix) {
			result = append(result, pattern[len(prefix):])
		}
	}
	return result
}

func matchAny(patterns []string, path string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, eris.Wrapf(err, "invalid pattern %s", pattern)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// CopyTree copies every file below src to dest, keeping relative paths. Hidden files and
// directories as well as files matching excludes are skipped. It returns the number of
// copied files.
func CopyTree(ctx context.Context, src, dest string, excludes []string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return 0, buildsys.ConfigError(eris.Errorf("source directory %s does not exist", src))
		}
		return 0, eris.Wrapf(err, "failed to check %s", src)
	}
	if !info.IsDir() {
		return 0, buildsys.ConfigError(eris.Errorf("%s is not a directory", src))
	}

	count := 0
	err = filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if path != src && isHidden(entry.Name()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		excluded, err := matchAny(excludes, rel)
		if err != nil {
			return err
		}
		if excluded {
			buildsys.Log(ctx).Debug().Str("path", path).Msgf("Skipping excluded file %s", rel)
			return nil
		}

		err = CopyFile(path, filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, eris.Wrapf(err, "failed to copy %s", src)
	}

	return count, nil
}

// CopyFile copies a single file, creating the destination directory as needed
func CopyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return buildsys.ConfigError(eris.Errorf("source file %s does not exist", src))
		}
		return eris.Wrapf(err, "failed to check %s", src)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", src)
	}

	return pkg.WriteFileAtomic(dest, data, info.Mode().Perm())
}

// Clean removes all previous theme builds below the output directory
func (p *Pipeline) Clean(ctx context.Context) error {
	entries, err := os.ReadDir(p.Paths.Output)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil
		}
		return eris.Wrapf(err, "failed to list %s", p.Paths.Output)
	}

	for _, entry := range entries {
		path := filepath.Join(p.Paths.Output, entry.Name())
		buildsys.Log(ctx).Debug().Str("path", path).Msgf("Removing %s", p.Paths.Rel(path))
		if err := os.RemoveAll(path); err != nil {
			return eris.Wrapf(err, "failed to remove %s", path)
		}
	}
	return nil
}

func (p *Pipeline) copyCategory(ctx context.Context, cat Category, excludes []string) error {
	count, err := CopyTree(ctx, p.Paths.Src(cat), p.Paths.Dest(cat), excludes)
	if err != nil {
		return err
	}

	buildsys.Log(ctx).Info().Msgf("Copied %d files to %s", count, p.Paths.Rel(p.Paths.Dest(cat)))
	return nil
}

// CopyFonts copies the font sources
func (p *Pipeline) CopyFonts(ctx context.Context) error {
	return p.copyCategory(ctx, Fonts, nil)
}

// CopyImages copies the image sources
func (p *Pipeline) CopyImages(ctx context.Context) error {
	return p.copyCategory(ctx, Images, nil)
}

// CopyTemplates copies the templates except for the manifest which is written by
// StampManifest
func (p *Pipeline) CopyTemplates(ctx context.Context) error {
	return p.copyCategory(ctx, Templates, []string{p.Project.Manifest.File})
}

// CopyMapLibrary copies the map script and stylesheet into the asset directories
func (p *Pipeline) CopyMapLibrary(ctx context.Context) error {
	lib := p.Project.MapLibrary
	files := []struct{ src, dest string }{
		{p.Paths.Local(lib.Script), p.Paths.Dest(Scripts, lib.ScriptDest)},
		{p.Paths.Local(lib.Style), p.Paths.Dest(Styles, lib.StyleDest)},
	}

	for _, file := range files {
		err := CopyFile(file.src, file.dest)
		if err != nil {
			if buildsys.ErrorKindOf(err) == buildsys.KindConfig {
				return buildsys.ConfigError(eris.Wrap(err, "the map library is missing (install it or run fetch-vendor)"))
			}
			return err
		}
		buildsys.Log(ctx).Debug().Msgf("Copied %s to %s", p.Paths.Rel(file.src), p.Paths.Rel(file.dest))
	}

	return nil
}
