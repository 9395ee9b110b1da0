package theme

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/RavenSong/textpattern-hive-framework/pkg"
	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

var esbuildTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func esbuildTarget(name string) (api.Target, error) {
	target, ok := esbuildTargets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, eris.Errorf("unsupported script target %q", name)
	}
	return target, nil
}

// messagesError turns esbuild diagnostics into a single error with file:line:col locations
func messagesError(msg string, messages []api.Message) error {
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		if message.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", message.Location.File, message.Location.Line, message.Location.Column, message.Text))
		} else {
			lines = append(lines, message.Text)
		}
	}

	return eris.Errorf("%s:\n%s", msg, strings.Join(lines, "\n"))
}

func logWarnings(logger *zerolog.Logger, messages []api.Message) {
	for _, message := range messages {
		event := logger.Warn()
		if message.Location != nil {
			event = event.Str("path", message.Location.File).Int("line", message.Location.Line)
		}
		event.Msg(message.Text)
	}
}

// BundleScripts bundles the script entry point and its imports into a single browser script.
// Nothing is written if the bundle has errors.
func (p *Pipeline) BundleScripts(ctx context.Context) error {
	entry := p.Paths.Src(Scripts, p.Project.Scripts.Entry)
	dest := p.Paths.Dest(Scripts, p.Project.Scripts.Output)

	if _, err := os.Stat(entry); err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return buildsys.ConfigError(eris.Errorf("script entry point %s does not exist", p.Paths.Rel(entry)))
		}
		return eris.Wrapf(err, "failed to check %s", entry)
	}

	target, err := esbuildTarget(p.Project.Scripts.Target)
	if err != nil {
		return buildsys.ConfigError(err)
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{entry},
		Outfile:       dest,
		AbsWorkingDir: p.Paths.Root,
		Bundle:        true,
		Write:         false,
		Format:        api.FormatIIFE,
		Platform:      api.PlatformBrowser,
		Target:        target,
		Sourcemap:     api.SourceMapNone,
		LogLevel:      api.LogLevelSilent,
	})

	logWarnings(buildsys.Log(ctx), result.Warnings)
	if len(result.Errors) > 0 {
		return buildsys.TransformError(messagesError("failed to bundle "+p.Paths.Rel(entry), result.Errors))
	}

	for _, file := range result.OutputFiles {
		if filepath.Clean(file.Path) != filepath.Clean(dest) {
			continue
		}

		err = pkg.WriteFileAtomic(dest, file.Contents, 0o644)
		if err != nil {
			return err
		}

		buildsys.Log(ctx).Info().Msgf("Bundled %s (%d bytes)", p.Paths.Rel(dest), len(file.Contents))
		return nil
	}

	return eris.Errorf("esbuild produced no output for %s", p.Paths.Rel(dest))
}

// MinifyScript minifies JavaScript code and strips console calls and comments
func MinifyScript(code []byte, filename, targetName string) ([]byte, error) {
	target, err := esbuildTarget(targetName)
	if err != nil {
		return nil, buildsys.ConfigError(err)
	}

	result := api.Transform(string(code), api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        filename,
		Target:            target,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Drop:              api.DropConsole,
		LegalComments:     api.LegalCommentsNone,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, buildsys.TransformError(messagesError("failed to minify "+filename, result.Errors))
	}

	return result.Code, nil
}

// MinifyScripts minifies the bundled script in place
func (p *Pipeline) MinifyScripts(ctx context.Context) error {
	dest := p.Paths.Dest(Scripts, p.Project.Scripts.Output)

	code, err := os.ReadFile(dest)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return buildsys.ConfigError(eris.Errorf("%s does not exist, bundle the scripts first", p.Paths.Rel(dest)))
		}
		return eris.Wrapf(err, "failed to read %s", dest)
	}

	minified, err := MinifyScript(code, p.Paths.Rel(dest), p.Project.Scripts.Target)
	if err != nil {
		return err
	}

	err = pkg.WriteFileAtomic(dest, minified, 0o644)
	if err != nil {
		return err
	}

	buildsys.Log(ctx).Info().Msgf("Minified %s (%d -> %d bytes)", p.Paths.Rel(dest), len(code), len(minified))
	return nil
}
