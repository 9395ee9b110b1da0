package buildsys

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

type recorder struct {
	lock  sync.Mutex
	calls []string
}

func (r *recorder) fn(name string) TaskCmd {
	return Func(name, func(context.Context) error {
		r.lock.Lock()
		defer r.lock.Unlock()
		r.calls = append(r.calls, name)
		return nil
	})
}

func TestRunTask_OrderAndDedup(t *testing.T) {
	rec := &recorder{}
	tasks := TaskList{
		"clean":  {Short: "clean", Cmds: []TaskCmd{rec.fn("clean")}},
		"bundle": {Short: "bundle", Cmds: []TaskCmd{rec.fn("bundle")}},
		"minify": {Short: "minify", Deps: []string{"bundle"}, Cmds: []TaskCmd{rec.fn("minify")}},
		"build":  {Short: "build", Cmds: Refs("clean", "bundle", "minify")},
	}

	if err := RunTask(testContext(), t.TempDir(), "build", tasks, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := strings.Join(rec.calls, ",")
	if got != "clean,bundle,minify" {
		t.Fatalf("unexpected call order %s", got)
	}
}

func TestRunTask_UnknownTask(t *testing.T) {
	err := RunTask(testContext(), t.TempDir(), "missing", TaskList{}, false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if ErrorKindOf(err) != KindConfig {
		t.Fatalf("expected configuration error, got %v", ErrorKindOf(err))
	}
}

func TestRunTask_ParallelBarrier(t *testing.T) {
	var running int32
	var maxRunning int32
	var finished int32

	worker := func(name string) *Task {
		return &Task{Short: name, Cmds: []TaskCmd{Func(name, func(context.Context) error {
			now := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxRunning)
				if now <= old || atomic.CompareAndSwapInt32(&maxRunning, old, now) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&finished, 1)
			return nil
		})}}
	}

	var finishedBeforeNext int32
	tasks := TaskList{
		"a":   worker("a"),
		"b":   worker("b"),
		"c":   worker("c"),
		"par": {Short: "par", Parallel: true, Cmds: Refs("a", "b", "c")},
		"next": {Short: "next", Cmds: []TaskCmd{Func("next", func(context.Context) error {
			finishedBeforeNext = atomic.LoadInt32(&finished)
			return nil
		})}},
		"all": {Short: "all", Cmds: Refs("par", "next")},
	}

	if err := RunTask(testContext(), t.TempDir(), "all", tasks, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if maxRunning < 2 {
		t.Errorf("expected parallel execution, max concurrency was %d", maxRunning)
	}
	if finishedBeforeNext != 3 {
		t.Errorf("expected all parallel tasks to finish before the next stage, got %d", finishedBeforeNext)
	}
}

func TestRunTask_FailureStopsDownstream(t *testing.T) {
	rec := &recorder{}
	tasks := TaskList{
		"lint": {Short: "lint", Cmds: []TaskCmd{Func("lint", func(context.Context) error {
			return ValidationError(eris.New("3 problems"))
		})}},
		"compile": {Short: "compile", Cmds: []TaskCmd{rec.fn("compile")}},
		"css":     {Short: "css", Cmds: Refs("lint", "compile")},
	}

	err := RunTask(testContext(), t.TempDir(), "css", tasks, false)
	if err == nil {
		t.Fatalf("expected error")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T", err)
	}
	if stageErr.Stage != "lint" || stageErr.Kind != KindValidation {
		t.Fatalf("unexpected stage error %+v", stageErr)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("downstream stage ran: %v", rec.calls)
	}
	if ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", ExitCode(err))
	}
}

func TestRunTask_PlainErrorsBecomeRuntimeErrors(t *testing.T) {
	tasks := TaskList{
		"io": {Short: "io", Cmds: []TaskCmd{Func("io", func(context.Context) error {
			return os.ErrPermission
		})}},
	}

	err := RunTask(testContext(), t.TempDir(), "io", tasks, false)
	if ErrorKindOf(err) != KindRuntime {
		t.Fatalf("expected runtime error, got %v", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("expected wrapped permission error, got %v", err)
	}
}

func TestRunTask_ScriptExitStatusPropagates(t *testing.T) {
	tasks := TaskList{
		"lint": {Short: "lint", Cmds: []TaskCmd{TaskCmdScript{Content: "exit 3"}}},
	}

	err := RunTask(testContext(), t.TempDir(), "lint", tasks, false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if code := ExitCode(err); code != 3 {
		t.Fatalf("expected exit code 3, got %d (%v)", code, err)
	}
}

func TestRunTask_DryRunSkipsWork(t *testing.T) {
	rec := &recorder{}
	dir := t.TempDir()
	tasks := TaskList{
		"fn":     {Short: "fn", Cmds: []TaskCmd{rec.fn("fn")}},
		"script": {Short: "script", Cmds: []TaskCmd{TaskCmdScript{Content: "echo hi > out.txt"}}},
		"all":    {Short: "all", Cmds: Refs("fn", "script")},
	}

	if err := RunTask(testContext(), dir, "all", tasks, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("dry run executed functions: %v", rec.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.txt")); err == nil {
		t.Fatalf("dry run executed the script")
	}
}

func TestRunScript_EnvArgsAndDir(t *testing.T) {
	dir := t.TempDir()
	out := &bytes.Buffer{}
	ctx := WithStdio(testContext(), out, out)

	err := RunScript(ctx, TaskCmdScript{
		Content: `printf '%s|%s|%s' "$GREETING" "$1" "$#" > result.txt`,
		Dir:     dir,
		Env:     map[string]string{"GREETING": "hello"},
		Args:    []string{"first", "second"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	if err != nil {
		t.Fatalf("failed to read result: %v", err)
	}
	if string(data) != "hello|first|2" {
		t.Fatalf("unexpected script output %q", data)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Errorf("nil error should map to 0")
	}
	if ExitCode(eris.New("boom")) != 1 {
		t.Errorf("plain error should map to 1")
	}
	if ExitCode(&StageError{Kind: KindValidation, Code: 2, Err: eris.New("lint")}) != 2 {
		t.Errorf("stage code should be used")
	}
}
