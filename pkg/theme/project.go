// Package theme implements the asset pipeline of the Hive Textpattern theme: project
// configuration, the destination path table, every pipeline stage and the static task graph.
package theme

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

// Categories holds one directory per asset category
type Categories struct {
	Styles    string `yaml:"styles"`
	Fonts     string `yaml:"fonts"`
	Images    string `yaml:"images"`
	Scripts   string `yaml:"scripts"`
	Templates string `yaml:"templates"`
}

type ScriptsConfig struct {
	// Entry is relative to the scripts source directory, Output to the scripts destination.
	Entry     string   `yaml:"entry"`
	Output    string   `yaml:"output"`
	Target    string   `yaml:"target"`
	LintFiles []string `yaml:"lint_files"`
}

// StyleEntry maps a stylesheet source (relative to the styles source directory) to its
// compiled name in the styles destination
type StyleEntry struct {
	Src  string `yaml:"src"`
	Dest string `yaml:"dest"`
}

type StylesConfig struct {
	Entries    []StyleEntry `yaml:"entries"`
	LintConfig string       `yaml:"lint_config"`
	LintFiles  []string     `yaml:"lint_files"`
	// Browsers are esbuild engine names with versions (chrome87, safari14.1, ...).
	Browsers []string `yaml:"browsers"`
}

type MapLibraryConfig struct {
	Script     string `yaml:"script"`
	Style      string `yaml:"style"`
	ScriptDest string `yaml:"script_dest"`
	StyleDest  string `yaml:"style_dest"`
}

type ManifestConfig struct {
	File  string `yaml:"file"`
	Token string `yaml:"token"`
}

// ContentGlob selects purge content files inside a destination category
type ContentGlob struct {
	In   string `yaml:"in"`
	Glob string `yaml:"glob"`
}

type SafelistConfig struct {
	Standard []string `yaml:"standard"`
	Greedy   []string `yaml:"greedy"`
}

type PurgeConfig struct {
	Targets  []string       `yaml:"targets"`
	Content  []ContentGlob  `yaml:"content"`
	Safelist SafelistConfig `yaml:"safelist"`
}

// ToolsConfig contains the shell commands for the external tools. $SRC, $DEST and $CONFIG
// are set by the stage; files are passed as positional parameters.
type ToolsConfig struct {
	Sass      string `yaml:"sass"`
	Stylelint string `yaml:"stylelint"`
	JSHint    string `yaml:"jshint"`
}

// Project is the typed pipeline configuration
type Project struct {
	Theme        string                 `yaml:"theme"`
	Output       string                 `yaml:"output"`
	Sources      Categories             `yaml:"sources"`
	Destinations Categories             `yaml:"destinations"`
	Scripts      ScriptsConfig          `yaml:"scripts"`
	Styles       StylesConfig           `yaml:"styles"`
	MapLibrary   MapLibraryConfig       `yaml:"map_library"`
	Manifest     ManifestConfig         `yaml:"manifest"`
	Purge        PurgeConfig            `yaml:"purge"`
	JSHint       map[string]interface{} `yaml:"jshint"`
	Tools        ToolsConfig            `yaml:"tools"`
	Precompress  bool                   `yaml:"precompress"`
}

// DefaultProject returns the configuration used when the project script doesn't override
// anything
func DefaultProject() *Project {
	return &Project{
		Theme:  "hive-framework",
		Output: "themes",
		Sources: Categories{
			Styles:    "scss",
			Fonts:     "fonts",
			Images:    "img",
			Scripts:   "js",
			Templates: "templates",
		},
		Destinations: Categories{
			Styles:    "assets/css",
			Fonts:     "assets/fonts",
			Images:    "assets/img",
			Scripts:   "assets/js",
			Templates: "",
		},
		Scripts: ScriptsConfig{
			Entry:     "app.js",
			Output:    "app.js",
			Target:    "es2015",
			LintFiles: []string{"js/*.js"},
		},
		Styles: StylesConfig{
			Entries: []StyleEntry{
				{Src: "screen.scss", Dest: "screen.css"},
				{Src: "print.scss", Dest: "print.css"},
			},
			LintConfig: ".stylelintrc.yml",
			LintFiles:  []string{"scss/**/*.{css,scss}"},
			Browsers:   []string{"chrome87", "edge88", "firefox78", "ios14", "safari14"},
		},
		MapLibrary: MapLibraryConfig{
			Script:     "node_modules/leaflet/dist/leaflet.js",
			Style:      "node_modules/leaflet/dist/leaflet.css",
			ScriptDest: "map.js",
			StyleDest:  "map.css",
		},
		Manifest: ManifestConfig{
			File:  "manifest.json",
			Token: "version",
		},
		Purge: PurgeConfig{
			Targets: []string{"screen.css"},
			Content: []ContentGlob{
				{In: "templates", Glob: "**/*.txp"},
				{In: "scripts", Glob: "**/*.js"},
			},
			Safelist: SafelistConfig{
				Standard: []string{
					"caps",
					"comments_error",
					"cpreview",
					"error_message",
					"footnote",
					"list--no-bullets",
					"success",
					"error",
					"alert-block success",
					"alert-block error",
				},
				Greedy: []string{"input$", "textarea$", "disabled$"},
			},
		},
		JSHint: map[string]interface{}{
			"bitwise":   true,
			"browser":   true,
			"curly":     true,
			"eqeqeq":    true,
			"esversion": 6,
			"forin":     true,
			"globals": map[string]interface{}{
				"$":        true,
				"console":  true,
				"jQuery":   true,
				"Zepto":    true,
				"define":   true,
				"module":   true,
				"require":  true,
				"autosize": true,
				"Prism":    true,
			},
			"latedef": true,
			"noarg":   true,
			"nonew":   true,
			"strict":  true,
			"undef":   true,
			"unused":  true,
		},
		Tools: ToolsConfig{
			Sass:      `sass --style=expanded --no-source-map "$SRC" "$DEST"`,
			Stylelint: `stylelint --config "$CONFIG" "$@"`,
			JSHint:    `jshint --config "$CONFIG" "$@"`,
		},
	}
}

// projectKeys are the script globals that map to Project fields. Other globals are helpers
// of the script and ignored.
var projectKeys = map[string]bool{
	"theme":        true,
	"output":       true,
	"sources":      true,
	"destinations": true,
	"scripts":      true,
	"styles":       true,
	"map_library":  true,
	"manifest":     true,
	"purge":        true,
	"jshint":       true,
	"tools":        true,
	"precompress":  true,
}

// ApplyGlobals overrides the fields of p with the matching script globals. Nested sections
// are merged; lists replace the defaults.
func (p *Project) ApplyGlobals(ctx context.Context, globals map[string]interface{}) error {
	overrides := make(map[string]interface{})
	ignored := make([]string, 0)
	for name, value := range globals {
		if projectKeys[name] {
			overrides[name] = value
		} else {
			ignored = append(ignored, name)
		}
	}

	if len(ignored) > 0 {
		sort.Strings(ignored)
		buildsys.Log(ctx).Debug().Strs("globals", ignored).Msg("Ignoring script globals that aren't project settings")
	}
	if len(overrides) == 0 {
		return nil
	}

	encoded, err := yaml.Marshal(overrides)
	if err != nil {
		return eris.Wrap(err, "failed to encode project settings")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(encoded))
	decoder.KnownFields(true)
	err = decoder.Decode(p)
	if err != nil {
		return eris.Wrap(err, "invalid project settings")
	}
	return nil
}

// Validate checks the settings that would otherwise lead to confusing failures later on
func (p *Project) Validate() error {
	if p.Theme == "" || filepath.Base(p.Theme) != p.Theme {
		return eris.Errorf("theme must be a plain directory name, got %q", p.Theme)
	}
	if p.Output == "" || filepath.IsAbs(p.Output) || !isLocalPath(p.Output) || filepath.Clean(p.Output) == "." {
		return eris.Errorf("output must be a sub directory of the project, got %q", p.Output)
	}

	for name, dest := range p.Destinations.byName() {
		if filepath.IsAbs(dest) || !isLocalPath(dest) {
			return eris.Errorf("destinations.%s must stay inside the theme directory, got %q", name, dest)
		}
	}
	for name, src := range p.Sources.byName() {
		if src == "" {
			return eris.Errorf("sources.%s must not be empty", name)
		}
	}

	if p.Scripts.Entry == "" || p.Scripts.Output == "" {
		return eris.New("scripts.entry and scripts.output must be set")
	}
	if _, err := esbuildTarget(p.Scripts.Target); err != nil {
		return err
	}
	if len(p.Styles.Entries) == 0 {
		return eris.New("styles.entries must not be empty")
	}
	for _, entry := range p.Styles.Entries {
		if entry.Src == "" || entry.Dest == "" {
			return eris.Errorf("styles.entries contains an incomplete entry %+v", entry)
		}
	}
	if _, err := esbuildEngines(p.Styles.Browsers); err != nil {
		return err
	}
	if p.Manifest.File == "" || p.Manifest.Token == "" {
		return eris.New("manifest.file and manifest.token must be set")
	}
	if _, err := p.Purge.compileGreedy(); err != nil {
		return err
	}
	for _, glob := range p.Purge.Content {
		if _, ok := p.Destinations.byName()[glob.In]; !ok {
			return eris.Errorf("purge.content refers to unknown category %q", glob.In)
		}
	}

	return nil
}

func (c Categories) byName() map[string]string {
	return map[string]string{
		"styles":    c.Styles,
		"fonts":     c.Fonts,
		"images":    c.Images,
		"scripts":   c.Scripts,
		"templates": c.Templates,
	}
}

func isLocalPath(path string) bool {
	clean := filepath.ToSlash(filepath.Clean(path))
	return clean != ".." && !(len(clean) > 2 && clean[:3] == "../")
}

type packageMetadata struct {
	Version string `json:"version"`
}

// ReadVersion returns the version field of the package metadata file. It has to be a strict
// semantic version since it becomes part of every destination path.
func ReadVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "failed to read package metadata")
	}

	var meta packageMetadata
	err = json.Unmarshal(data, &meta)
	if err != nil {
		return "", eris.Wrapf(err, "failed to parse %s", path)
	}

	if meta.Version == "" {
		return "", eris.Errorf("%s has no version field", path)
	}

	version, err := semver.StrictNewVersion(meta.Version)
	if err != nil {
		return "", eris.Wrapf(err, "invalid version %q in %s", meta.Version, path)
	}

	return version.String(), nil
}

// LoadProject builds the project configuration for projectRoot. The script is optional; if
// it exists its globals override the defaults.
func LoadProject(ctx context.Context, projectRoot, scriptPath, version string, options map[string]string) (*Project, error) {
	project := DefaultProject()

	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(projectRoot, scriptPath)
	}

	_, err := os.Stat(scriptPath)
	switch {
	case err == nil:
		vars := map[string]interface{}{
			"VERSION": version,
		}
		script, err := buildsys.EvalConfigFile(ctx, scriptPath, projectRoot, vars, options)
		if err != nil {
			return nil, err
		}

		err = project.ApplyGlobals(ctx, script.Globals)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to apply %s", filepath.Base(scriptPath))
		}
	case eris.Is(err, os.ErrNotExist):
		buildsys.Log(ctx).Debug().Msgf("%s not found, using the default configuration", scriptPath)
		if len(options) > 0 {
			buildsys.Log(ctx).Warn().Msg("Options were passed but there is no project script to use them")
		}
	default:
		return nil, eris.Wrapf(err, "failed to check %s", scriptPath)
	}

	if err := project.Validate(); err != nil {
		return nil, err
	}
	return project, nil
}
