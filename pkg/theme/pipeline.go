package theme

import (
	"context"
	"path/filepath"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

// Pipeline binds the project configuration to the paths of one invocation
type Pipeline struct {
	Project *Project
	Paths   *PathTable
}

// LoadOptions describes where the project inputs live
type LoadOptions struct {
	Root string
	// Script and Package are relative to Root.
	Script  string
	Package string
	// Options are passed to option() calls of the script.
	Options map[string]string
}

// Load reads the version and the project configuration. Every failure is a configuration
// error.
func Load(ctx context.Context, opts LoadOptions) (*Pipeline, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, buildsys.ConfigError(err)
	}

	packagePath := opts.Package
	if !filepath.IsAbs(packagePath) {
		packagePath = filepath.Join(root, packagePath)
	}

	version, err := ReadVersion(packagePath)
	if err != nil {
		return nil, buildsys.ConfigError(err)
	}

	project, err := LoadProject(ctx, root, opts.Script, version, opts.Options)
	if err != nil {
		return nil, buildsys.ConfigError(err)
	}

	return New(root, project, version)
}

// New creates a pipeline from an already loaded project
func New(root string, project *Project, version string) (*Pipeline, error) {
	paths, err := NewPathTable(root, project, version)
	if err != nil {
		return nil, buildsys.ConfigError(err)
	}

	return &Pipeline{
		Project: project,
		Paths:   paths,
	}, nil
}
