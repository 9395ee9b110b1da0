package theme

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

func TestTasks_GraphIsValid(t *testing.T) {
	p := newTestPipeline(t, newFixture(t), nil)
	tasks := p.Tasks()

	if err := buildsys.Validate(tasks); err != nil {
		t.Fatalf("invalid task graph: %v", err)
	}
	for _, name := range append(append([]string{}, Commands...), ConcurrentTasks...) {
		if _, ok := tasks[name]; !ok {
			t.Errorf("task %s is missing", name)
		}
	}
	if !tasks["concurrent"].Parallel {
		t.Errorf("the concurrent group must run in parallel")
	}
}

func TestHTML_CopiesTemplatesWithoutManifest(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	if err := runTask(t, p, "html"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !exists(p.Paths.Dest(Templates, "page.txp")) {
		t.Errorf("page.txp was not copied")
	}
	if !exists(p.Paths.Dest(Templates, "forms", "misc", "header.txp")) {
		t.Errorf("nested templates were not copied")
	}
	if exists(p.Paths.Dest(Templates, "manifest.json")) {
		t.Errorf("manifest.json must be left to the stamping stage")
	}
	if !exists(p.Paths.Dest(Images, "icons", "menu.svg")) {
		t.Errorf("images were not copied")
	}
}

func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()

	result := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			result[path] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestHTML_Idempotent(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	if err := runTask(t, p, "html"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := snapshot(t, p.Paths.ThemeDir)

	if err := runTask(t, p, "html"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := snapshot(t, p.Paths.ThemeDir)

	if len(first) != len(second) {
		t.Fatalf("file count changed from %d to %d", len(first), len(second))
	}
	for path, content := range first {
		if second[path] != content {
			t.Errorf("%s changed between runs", path)
		}
	}
}

func TestCopyFonts_SkipsHiddenFiles(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	if err := p.CopyFonts(testContext()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists(p.Paths.Dest(Fonts, "hive.woff2")) {
		t.Errorf("font was not copied")
	}
	if exists(p.Paths.Dest(Fonts, ".DS_Store")) {
		t.Errorf("hidden file was copied")
	}
}

func TestCopy_MissingSourceIsConfigError(t *testing.T) {
	root := newFixture(t)
	if err := os.RemoveAll(filepath.Join(root, "fonts")); err != nil {
		t.Fatal(err)
	}
	p := newTestPipeline(t, root, nil)

	err := runTask(t, p, "copy:fonts")
	if buildsys.ErrorKindOf(err) != buildsys.KindConfig {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestCopyMapLibrary(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	if err := p.CopyMapLibrary(testContext()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if readFile(t, p.Paths.Dest(Scripts, "map.js")) != "var L = {};\n" {
		t.Errorf("map.js differs from the library script")
	}
	if !exists(p.Paths.Dest(Styles, "map.css")) {
		t.Errorf("map.css was not copied")
	}
}

func TestScripts_BundleAndMinify(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	if err := runTask(t, p, "js:minify"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	code := readFile(t, p.Paths.Dest(Scripts, "app.js"))
	if !strings.Contains(code, "Hello ") {
		t.Errorf("bundle is missing the imported module:\n%s", code)
	}
	if strings.Contains(code, "console") {
		t.Errorf("console calls were not dropped:\n%s", code)
	}
	if strings.Contains(code, "setup") {
		t.Errorf("comments were not removed:\n%s", code)
	}
}

func TestScripts_SyntaxErrorKeepsPreviousOutput(t *testing.T) {
	root := newFixture(t)
	writeFile(t, root, "js/app.js", "function (\n")
	p := newTestPipeline(t, root, nil)

	dest := p.Paths.Dest(Scripts, "app.js")
	writeFile(t, filepath.Dir(dest), "app.js", "previous build")

	err := runTask(t, p, "js:minify")
	if err == nil {
		t.Fatalf("expected a syntax error")
	}
	if buildsys.ErrorKindOf(err) != buildsys.KindTransform {
		t.Errorf("expected a transformation error, got %v", err)
	}
	if buildsys.ExitCode(err) == 0 {
		t.Errorf("expected a non-zero exit code")
	}
	if !strings.Contains(err.Error(), "app.js:1") {
		t.Errorf("expected the error location, got %v", err)
	}
	if readFile(t, dest) != "previous build" {
		t.Errorf("the previous output was modified")
	}
}

func TestScripts_MissingEntryIsConfigError(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, func(project *Project) {
		project.Scripts.Entry = "missing.js"
	})

	err := runTask(t, p, "js:bundle")
	if buildsys.ErrorKindOf(err) != buildsys.KindConfig {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestCSS_LintFailureStopsCompilation(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, func(project *Project) {
		project.Tools.Stylelint = `exit 2`
	})

	err := runTask(t, p, "css")
	if buildsys.ErrorKindOf(err) != buildsys.KindValidation {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if code := buildsys.ExitCode(err); code != 2 {
		t.Errorf("expected the linter's exit status 2, got %d", code)
	}

	var stageErr *buildsys.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "lint:css" {
		t.Errorf("expected lint:css to fail, got %v", err)
	}
	if exists(p.Paths.Dest(Styles, "screen.css")) {
		t.Errorf("the stylesheets were compiled despite the lint failure")
	}
}

func TestCSS_LinterReceivesFiles(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, func(project *Project) {
		project.Tools.Stylelint = `printf '%s\n' "$@" > lint-args.txt`
	})

	if err := p.LintStyles(testContext()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args := strings.Fields(readFile(t, filepath.Join(root, "lint-args.txt")))
	expected := []string{"scss/_partials/_base.scss", "scss/print.scss", "scss/screen.scss"}
	if strings.Join(args, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, args)
	}
}

func TestCSS_MissingToolIsConfigError(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, func(project *Project) {
		project.Tools.Sass = `hivebuild-test-missing-sass "$SRC" "$DEST"`
	})

	err := runTask(t, p, "css:compile")
	if buildsys.ErrorKindOf(err) != buildsys.KindConfig {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	// leftovers of an older version are removed
	writeFile(t, root, "themes/hive-framework-1.0.0/old.txt", "old")

	if err := runTask(t, p, "build"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if exists(filepath.Join(root, "themes", "hive-framework-1.0.0")) {
		t.Errorf("clean did not remove the old build")
	}

	expected := []string{
		p.Paths.Dest(Scripts, "app.js"),
		p.Paths.Dest(Scripts, "map.js"),
		p.Paths.Dest(Styles, "screen.css"),
		p.Paths.Dest(Styles, "print.css"),
		p.Paths.Dest(Styles, "map.css"),
		p.Paths.Dest(Fonts, "hive.woff2"),
		p.Paths.Dest(Images, "logo.svg"),
		p.Paths.Dest(Templates, "page.txp"),
		p.Paths.Dest(Templates, "manifest.json"),
	}
	for _, path := range expected {
		if !exists(path) {
			t.Errorf("%s is missing", p.Paths.Rel(path))
		}
	}

	screen := readFile(t, p.Paths.Dest(Styles, "screen.css"))
	if !strings.Contains(screen, ".unused") {
		t.Errorf("the development build must not purge:\n%s", screen)
	}
	if strings.Contains(screen, "\n.") {
		t.Errorf("the stylesheet was not compressed:\n%s", screen)
	}
	if exists(p.Paths.Dest(Styles, "screen.css.br")) {
		t.Errorf("the development build must not precompress")
	}

	if manifest := readFile(t, p.Paths.Dest(Templates, "manifest.json")); !strings.Contains(manifest, `"version": "1.2.3"`) {
		t.Errorf("manifest was not stamped: %s", manifest)
	}
}

func TestBuildProduction(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, func(project *Project) {
		project.Precompress = true
	})

	if err := runTask(t, p, "build-production"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	screen := readFile(t, p.Paths.Dest(Styles, "screen.css"))
	if strings.Contains(screen, ".unused") {
		t.Errorf("unused selector survived the purge:\n%s", screen)
	}
	if !strings.Contains(screen, ".used-class") {
		t.Errorf("selector used by a template was removed:\n%s", screen)
	}
	if !strings.Contains(screen, ".caps") {
		t.Errorf("safelisted selector was removed:\n%s", screen)
	}

	printCSS := readFile(t, p.Paths.Dest(Styles, "print.css"))
	if !strings.Contains(printCSS, ".unused") {
		t.Errorf("only the purge targets may be purged:\n%s", printCSS)
	}

	for _, path := range []string{p.Paths.Dest(Styles, "screen.css.br"), p.Paths.Dest(Scripts, "app.js.br")} {
		if !exists(path) {
			t.Errorf("%s is missing", p.Paths.Rel(path))
		}
	}
}

func TestBuild_DryRunWritesNothing(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	err := buildsys.RunTask(testContext(), root, "build", p.Tasks(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists(p.Paths.Output) {
		t.Errorf("a dry run created %s", p.Paths.Rel(p.Paths.Output))
	}
}

func TestCheckTools(t *testing.T) {
	root := newFixture(t)
	writeFile(t, root, "node_modules/.bin/stylelint", "#!/bin/sh\n")
	if err := os.Chmod(filepath.Join(root, "node_modules", ".bin", "stylelint"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, root, func(project *Project) {
		project.Tools.Sass = `hivebuild-test-missing-sass "$SRC" "$DEST"`
		project.Tools.Stylelint = `stylelint --config "$CONFIG" "$@"`
	})

	statuses, err := p.CheckTools()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := make(map[string]bool)
	for _, status := range statuses {
		found[status.Name] = status.Found
	}
	if found["sass"] {
		t.Errorf("a missing program was reported as found")
	}
	if !found["stylelint"] {
		t.Errorf("node_modules/.bin was not searched")
	}
	if !found["jshint"] {
		t.Errorf("shell builtins must count as found")
	}
}

func TestProgramName(t *testing.T) {
	cases := map[string]string{
		`sass --style=expanded "$SRC" "$DEST"`: "sass",
		`SASS_PATH=scss sass "$SRC" "$DEST"`:   "sass",
		`npx stylelint "$@" && echo done`:      "npx",
		`./node_modules/.bin/jshint "$@"`:      "./node_modules/.bin/jshint",
	}

	for script, expected := range cases {
		program, err := programName(script)
		if err != nil || program != expected {
			t.Errorf("%s: expected %s, got %s (%v)", script, expected, program, err)
		}
	}

	if _, err := programName(`# nothing`); err == nil {
		t.Errorf("expected an error for a script without commands")
	}
}
