package theme

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

func (p *Pipeline) runLinter(ctx context.Context, stage, tool, script, config string, patterns []string) error {
	files, err := Expand(p.Paths.Root, patterns)
	if err != nil {
		return buildsys.ConfigError(err)
	}
	if len(files) == 0 {
		buildsys.Log(ctx).Info().Msgf("No files match %v, skipping %s", patterns, tool)
		return nil
	}

	err = buildsys.RunScript(ctx, buildsys.TaskCmdScript{
		TaskName: stage,
		Content:  script,
		Dir:      p.Paths.Root,
		Env: p.toolEnv(map[string]string{
			"CONFIG": config,
		}),
		Args: files,
	})
	if err != nil {
		return toolError(tool, err, buildsys.KindValidation)
	}

	buildsys.Log(ctx).Info().Msgf("%s checked %d files", tool, len(files))
	return nil
}

// LintStyles runs the stylesheet linter on the stylesheet sources
func (p *Pipeline) LintStyles(ctx context.Context) error {
	config := p.Paths.Local(p.Project.Styles.LintConfig)
	if _, err := os.Stat(config); err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return buildsys.ConfigError(eris.Errorf("stylelint configuration %s does not exist", p.Paths.Rel(config)))
		}
		return eris.Wrapf(err, "failed to check %s", config)
	}

	return p.runLinter(ctx, "lint:css", "stylelint", p.Project.Tools.Stylelint, config, p.Project.Styles.LintFiles)
}

// LintScripts runs the script linter with the configured options
func (p *Pipeline) LintScripts(ctx context.Context) error {
	options, err := json.MarshalIndent(p.Project.JSHint, "", "  ")
	if err != nil {
		return buildsys.ConfigError(eris.Wrap(err, "failed to encode the jshint options"))
	}

	config, err := os.CreateTemp("", "hivebuild-jshint-*.json")
	if err != nil {
		return eris.Wrap(err, "failed to create the jshint configuration")
	}
	defer os.Remove(config.Name())

	_, err = config.Write(options)
	if closeErr := config.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return eris.Wrap(err, "failed to write the jshint configuration")
	}

	return p.runLinter(ctx, "lint:js", "jshint", p.Project.Tools.JSHint, config.Name(), p.Project.Scripts.LintFiles)
}
