package theme

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/andybalholm/brotli"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
	"github.com/RavenSong/textpattern-hive-framework/pkg/purge"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var enginePattern = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+){0,2})$`)

// esbuildEngines parses browser names like chrome87 or safari14.1
func esbuildEngines(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, browser := range browsers {
		match := enginePattern.FindStringSubmatch(strings.ToLower(browser))
		if match == nil {
			return nil, eris.Errorf("invalid browser %q (expected a name followed by a version like chrome87)", browser)
		}

		name, ok := engineNames[match[1]]
		if !ok {
			return nil, eris.Errorf("unsupported browser %q", match[1])
		}
		engines = append(engines, api.Engine{Name: name, Version: match[2]})
	}
	return engines, nil
}

// toolError classifies the failure of an external tool. Exit status 127 means the shell
// couldn't find the tool.
func toolError(tool string, err error, kind buildsys.ErrorKind) error {
	if err == nil {
		return nil
	}

	if buildsys.ExitCode(err) == 127 {
		return buildsys.ConfigError(eris.Wrapf(err, "%s is not installed or not in PATH", tool))
	}

	// keep the tool's exit status
	code := buildsys.ExitCode(err)
	switch kind {
	case buildsys.KindValidation:
		return &buildsys.StageError{Kind: kind, Code: code, Err: eris.Wrapf(err, "%s reported problems", tool)}
	case buildsys.KindTransform:
		return &buildsys.StageError{Kind: kind, Code: code, Err: eris.Wrapf(err, "%s failed", tool)}
	default:
		return err
	}
}

// CompileStyles runs the style compiler for every configured entry
func (p *Pipeline) CompileStyles(ctx context.Context) error {
	for _, entry := range p.Project.Styles.Entries {
		src := p.Paths.Src(Styles, entry.Src)
		dest := p.Paths.Dest(Styles, entry.Dest)

		if _, err := os.Stat(src); err != nil {
			if eris.Is(err, os.ErrNotExist) {
				return buildsys.ConfigError(eris.Errorf("stylesheet %s does not exist", p.Paths.Rel(src)))
			}
			return eris.Wrapf(err, "failed to check %s", src)
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o770); err != nil {
			return eris.Wrapf(err, "failed to create %s", filepath.Dir(dest))
		}

		err := buildsys.RunScript(ctx, buildsys.TaskCmdScript{
			TaskName: "css:compile",
			Content:  p.Project.Tools.Sass,
			Dir:      p.Paths.Root,
			Env: p.toolEnv(map[string]string{
				"SRC":  src,
				"DEST": dest,
			}),
		})
		if err != nil {
			return toolError("sass", err, buildsys.KindTransform)
		}

		if !buildsys.IsDryRun(ctx) {
			if _, err := os.Stat(dest); err != nil {
				return buildsys.TransformError(eris.Errorf("the style compiler did not write %s", p.Paths.Rel(dest)))
			}
		}
	}

	return nil
}

func (c PurgeConfig) compileGreedy() ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(c.Safelist.Greedy))
	for _, raw := range c.Safelist.Greedy {
		pattern, err := regexp.Compile(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid purge.safelist.greedy pattern %q", raw)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

// PurgeContent collects the words of every purge content file of the current build
func (p *Pipeline) PurgeContent() (*purge.Content, int, error) {
	content := purge.NewContent()
	files := 0

	for _, glob := range p.Project.Purge.Content {
		root := p.Paths.Dest(Category(glob.In))
		matches, err := Expand(root, []string{glob.Glob})
		if err != nil {
			return nil, 0, buildsys.ConfigError(err)
		}

		paths := make([]string, len(matches))
		for idx, match := range matches {
			paths[idx] = filepath.Join(root, filepath.FromSlash(match))
		}
		if err := content.AddFiles(paths); err != nil {
			return nil, 0, err
		}
		files += len(paths)
	}

	return content, files, nil
}

// PurgeStyles removes unused selectors from the purge targets
func (p *Pipeline) PurgeStyles(ctx context.Context) error {
	greedy, err := p.Project.Purge.compileGreedy()
	if err != nil {
		return buildsys.ConfigError(err)
	}
	safelist := purge.Safelist{
		Standard: p.Project.Purge.Safelist.Standard,
		Greedy:   greedy,
	}

	content, files, err := p.PurgeContent()
	if err != nil {
		return err
	}
	if files == 0 {
		buildsys.Log(ctx).Warn().Msg("No content files found, only safelisted selectors will survive")
	}

	for _, target := range p.Project.Purge.Targets {
		path := p.Paths.Dest(Styles, target)
		src, err := os.ReadFile(path)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				return buildsys.ConfigError(eris.Errorf("purge target %s does not exist", p.Paths.Rel(path)))
			}
			return eris.Wrapf(err, "failed to read %s", path)
		}

		pruned, stats, err := purge.Prune(src, content, safelist)
		if err != nil {
			return buildsys.TransformError(eris.Wrapf(err, "failed to purge %s", p.Paths.Rel(path)))
		}

		err = pkg.WriteFileAtomic(path, pruned, 0o644)
		if err != nil {
			return err
		}

		buildsys.Log(ctx).Info().
			Int("selectors", stats.Selectors).
			Int("removed", stats.Removed).
			Int("content_files", files).
			Msgf("Purged %s", p.Paths.Rel(path))
	}

	return nil
}

// PostProcessCSS adds vendor prefixes for engines and compresses the stylesheet
func PostProcessCSS(code []byte, filename string, engines []api.Engine) ([]byte, error) {
	result := api.Transform(string(code), api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       filename,
		Engines:          engines,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LegalComments:    api.LegalCommentsNone,
		LogLevel:         api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, buildsys.TransformError(messagesError("failed to process "+filename, result.Errors))
	}
	return result.Code, nil
}

// PostProcessStyles post-processes every stylesheet in the styles destination
func (p *Pipeline) PostProcessStyles(ctx context.Context) error {
	engines, err := esbuildEngines(p.Project.Styles.Browsers)
	if err != nil {
		return buildsys.ConfigError(err)
	}

	dir := p.Paths.Dest(Styles)
	matches, err := Expand(dir, []string{"*.css"})
	if err != nil {
		return err
	}

	for _, match := range matches {
		path := filepath.Join(dir, match)
		code, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", path)
		}

		processed, err := PostProcessCSS(code, p.Paths.Rel(path), engines)
		if err != nil {
			return err
		}

		err = pkg.WriteFileAtomic(path, processed, 0o644)
		if err != nil {
			return err
		}
		buildsys.Log(ctx).Info().Msgf("Processed %s (%d -> %d bytes)", p.Paths.Rel(path), len(code), len(processed))
	}

	return nil
}

// CompressFile writes a brotli compressed copy of path to path.br
func CompressFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "failed to read %s", path)
	}

	var buffer bytes.Buffer
	brw := brotli.NewWriterLevel(&buffer, brotli.BestCompression)
	_, err = brw.Write(data)
	if err != nil {
		return 0, eris.Wrapf(err, "failed to compress %s", path)
	}

	err = brw.Close()
	if err != nil {
		return 0, eris.Wrapf(err, "failed to compress %s", path)
	}

	size := int64(buffer.Len())
	return size, pkg.WriteFileAtomic(path+".br", buffer.Bytes(), 0o644)
}

// Precompress writes .br siblings for the built stylesheets and scripts when enabled
func (p *Pipeline) Precompress(ctx context.Context) error {
	if !p.Project.Precompress {
		buildsys.Log(ctx).Debug().Msg("Precompression is disabled")
		return nil
	}

	files := make([]string, 0)
	for _, cat := range []Category{Styles, Scripts} {
		dir := p.Paths.Dest(cat)
		matches, err := Expand(dir, []string{"**/*.css", "**/*.js"})
		if err != nil {
			return err
		}
		for _, match := range matches {
			files = append(files, filepath.Join(dir, filepath.FromSlash(match)))
		}
	}

	var total int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, file := range files {
		file := file
		group.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			size, err := CompressFile(file)
			atomic.AddInt64(&total, size)
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	buildsys.Log(ctx).Info().Msgf("Compressed %d files (%d bytes)", len(files), total)
	return nil
}
