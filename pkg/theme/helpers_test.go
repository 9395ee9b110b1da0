package theme

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

const testVersion = "1.2.3"

func testContext() context.Context {
	logger := zerolog.Nop()
	return buildsys.WithLogger(context.Background(), &logger)
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newFixture creates a small theme project and returns its root
func newFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"package.json":                          `{"name": "hive-framework", "version": "1.2.3"}`,
		".stylelintrc.yml":                      "rules: {}\n",
		"scss/screen.scss":                      ".used-class { color: red; }\n",
		"scss/print.scss":                       "body { color: black; }\n",
		"scss/_partials/_base.scss":             "a { color: blue; }\n",
		"fonts/hive.woff2":                      "font",
		"fonts/.DS_Store":                       "junk",
		"img/logo.svg":                          "<svg></svg>",
		"img/icons/menu.svg":                    "<svg></svg>",
		"js/lib.js":                             "export function greet(name) { document.title = 'Hello ' + name; }\n",
		"js/app.js":                             "import { greet } from './lib.js';\n// setup\nconsole.log('debug');\ngreet('hive');\n",
		"templates/page.txp":                    `<div class="used-class"><txp:output_form form="header" /></div>`,
		"templates/forms/misc/header.txp":       `<header class="site-header"></header>`,
		"templates/manifest.json":               `{"title": "Hive", "version": "version"}`,
		"node_modules/leaflet/dist/leaflet.js":  "var L = {};\n",
		"node_modules/leaflet/dist/leaflet.css": ".leaflet-container { overflow: hidden; }\n",
	}
	for name, content := range files {
		writeFile(t, root, name, content)
	}

	return root
}

// fakeTools replaces the external tools with shell builtins
func fakeTools(project *Project) {
	project.Tools = ToolsConfig{
		Sass:      `printf '.used-class{color:red}\n.unused{color:blue}\n.caps{display:flex}\n' > "$DEST"`,
		Stylelint: `true`,
		JSHint:    `true`,
	}
}

func newTestPipeline(t *testing.T, root string, configure func(*Project)) *Pipeline {
	t.Helper()

	project := DefaultProject()
	fakeTools(project)
	if configure != nil {
		configure(project)
	}
	if err := project.Validate(); err != nil {
		t.Fatalf("invalid project: %v", err)
	}

	pipeline, err := New(root, project, testVersion)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return pipeline
}

func runTask(t *testing.T, p *Pipeline, task string) error {
	t.Helper()
	return buildsys.RunTask(testContext(), p.Paths.Root, task, p.Tasks(), false)
}
