package theme

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

type recordedRun struct {
	task string
	refs []string
}

func recordingWatcher(t *testing.T) (*Watcher, *[]recordedRun) {
	t.Helper()

	p := newTestPipeline(t, newFixture(t), nil)
	runs := make([]recordedRun, 0)

	w := NewWatcher(p, 0)
	w.Run = func(ctx context.Context, task string, tasks buildsys.TaskList) error {
		if err := buildsys.Validate(tasks); err != nil {
			t.Errorf("invalid task graph: %v", err)
		}

		refs := make([]string, 0)
		for _, cmd := range tasks[task].Cmds {
			if ref, ok := cmd.(buildsys.TaskCmdTaskRef); ok {
				refs = append(refs, ref.Name)
			}
		}
		runs = append(runs, recordedRun{task: task, refs: refs})
		return nil
	}

	return w, &runs
}

func TestWatcher_Affected(t *testing.T) {
	w, _ := recordingWatcher(t)

	cases := []struct {
		paths    []string
		expected string
	}{
		{[]string{"scss/screen.scss"}, "styles"},
		{[]string{"scss/_partials/_base.scss"}, "styles"},
		{[]string{"js/app.js"}, "scripts"},
		{[]string{"templates/forms/misc/header.txp"}, "templates"},
		{[]string{"templates/page.txp", "scss/print.scss"}, "styles,templates"},
		{[]string{"README.md"}, ""},
		{[]string{"scss/notes.txt"}, ""},
	}

	for _, tc := range cases {
		affected, err := w.Affected(tc.paths)
		if err != nil {
			t.Fatalf("%v: unexpected error %v", tc.paths, err)
		}

		names := make([]string, 0, len(affected))
		for _, category := range affected {
			names = append(names, category.Name)
		}
		if strings.Join(names, ",") != tc.expected {
			t.Errorf("%v: expected %q, got %q", tc.paths, tc.expected, strings.Join(names, ","))
		}
	}
}

func TestWatcher_HandleRunsAffectedTasks(t *testing.T) {
	w, runs := recordingWatcher(t)

	err := w.Handle(testContext(), []string{"js/lib.js", "scss/screen.scss", "js/app.js"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*runs) != 1 {
		t.Fatalf("expected one run, got %d", len(*runs))
	}
	run := (*runs)[0]
	if run.task != "watch:batch" {
		t.Errorf("unexpected task %s", run.task)
	}
	if refs := strings.Join(run.refs, ","); refs != "css,lint:js,js:bundle,js:minify" {
		t.Errorf("unexpected tasks %s", refs)
	}
}

func TestWatcher_HandleIgnoresUnrelatedChanges(t *testing.T) {
	w, runs := recordingWatcher(t)

	if err := w.Handle(testContext(), []string{"package-lock.json"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*runs) != 0 {
		t.Errorf("expected no run, got %v", *runs)
	}
}

func TestWatcher_HandleAbsolutePaths(t *testing.T) {
	w, runs := recordingWatcher(t)

	path := filepath.Join(w.Pipeline.Paths.Root, "templates", "page.txp")
	if err := w.Handle(testContext(), []string{path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*runs) != 1 || strings.Join((*runs)[0].refs, ",") != "copy:html,stamp:manifest" {
		t.Errorf("unexpected runs %v", *runs)
	}
}

func TestWatcher_HandleRebuildsTemplates(t *testing.T) {
	p := newTestPipeline(t, newFixture(t), nil)
	w := NewWatcher(p, 0)

	if err := w.Handle(testContext(), []string{"templates/page.txp"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists(p.Paths.Dest(Templates, "page.txp")) {
		t.Errorf("templates were not copied")
	}
	if manifest := readFile(t, p.Paths.Dest(Templates, "manifest.json")); !strings.Contains(manifest, testVersion) {
		t.Errorf("manifest was not stamped: %s", manifest)
	}
}

func TestWatcher_PatternsExcludeOutput(t *testing.T) {
	w, _ := recordingWatcher(t)

	_, excludes := w.patterns()
	found := false
	for _, pattern := range excludes {
		if pattern == "themes/**" {
			found = true
		}
	}
	if !found {
		t.Errorf("the output directory is not excluded: %v", excludes)
	}
}
