package buildsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// HelperBinary is the executable that implements the portable rm, mkdir and mv commands.
// When empty, scripts use whatever the system provides.
var HelperBinary string

type (
	runtimeCtxKey struct{}
	stdioKey      struct{}
	runtimeCtx    struct {
		lock        sync.Mutex
		runTasks    map[string]*taskState
		tasks       TaskList
		projectRoot string
		dryRun      bool
		logger      *zerolog.Logger
	}
	taskState struct {
		done chan struct{}
		err  error
	}
	stdio struct {
		out    io.Writer
		errOut io.Writer
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	rctx, _ := ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
	return rctx
}

// WithStdio redirects the output of shell scripts started with ctx
func WithStdio(ctx context.Context, out, errOut io.Writer) context.Context {
	return context.WithValue(ctx, stdioKey{}, stdio{out: out, errOut: errOut})
}

func getStdio(ctx context.Context) (io.Writer, io.Writer) {
	value, ok := ctx.Value(stdioKey{}).(stdio)
	if !ok {
		return os.Stdout, os.Stderr
	}
	return value.out, value.errOut
}

// IsDryRun reports whether ctx belongs to a dry run
func IsDryRun(ctx context.Context) bool {
	rctx := getRuntimeCtx(ctx)
	return rctx != nil && rctx.dryRun
}

func getScriptEnv(script TaskCmdScript) expand.Environ {
	envVars := os.Environ()

	for name, value := range script.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(envVars...)
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && HelperBinary != "" {
		switch args[0] {
		case "mv", "rm", "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			args = append([]string{HelperBinary}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// RunTask executes the given task, its dependencies and everything it references. Each task
// runs at most once per call.
func RunTask(ctx context.Context, projectRoot, task string, tasks TaskList, dryRun bool) error {
	if err := Validate(tasks); err != nil {
		return ConfigError(err)
	}

	rctx := runtimeCtx{
		projectRoot: projectRoot,
		tasks:       tasks,
		dryRun:      dryRun,
		logger:      log(ctx),
		runTasks:    make(map[string]*taskState),
	}

	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)
	taskMeta, found := tasks[task]
	if !found {
		return ConfigError(eris.Errorf("Task %s not found", task))
	}

	return runTaskInternal(ctx, taskMeta)
}

func runTaskInternal(ctx context.Context, task *Task) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rctx := getRuntimeCtx(ctx)
	rctx.lock.Lock()
	state, ok := rctx.runTasks[task.Short]
	if ok {
		rctx.lock.Unlock()

		// Validate() rules out cycles so this is either finished or running in a parallel branch
		select {
		case <-state.done:
			log(ctx).Debug().Msgf("Task %s already run", task.Short)
			return state.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	state = &taskState{done: make(chan struct{})}
	rctx.runTasks[task.Short] = state
	rctx.lock.Unlock()

	state.err = executeTask(ctx, task)
	close(state.done)
	return state.err
}

func executeTask(ctx context.Context, task *Task) error {
	rctx := getRuntimeCtx(ctx)
	logger := rctx.logger.With().Str("task", task.Short).Logger()
	ctx = WithLogger(ctx, &logger)

	for _, dep := range task.Deps {
		err := runTaskInternal(ctx, rctx.tasks[dep])
		if err != nil {
			logger.Debug().Msgf("Task %s failed due to its dependency %s", task.Short, dep)
			return err
		}
	}

	if task.Parallel {
		group, gctx := errgroup.WithContext(ctx)
		for _, name := range task.Refs() {
			sub := rctx.tasks[name]
			group.Go(func() error {
				return runTaskInternal(gctx, sub)
			})
		}

		return group.Wait()
	}

	for idx, item := range task.Cmds {
		var err error

		switch value := item.(type) {
		case TaskCmdTaskRef:
			err = runTaskInternal(ctx, rctx.tasks[value.Name])
			if err != nil {
				return err
			}
		case TaskCmdFunc:
			logger.Info().Msg(value.Name)
			if !rctx.dryRun {
				err = value.Fn(ctx)
			}
		case TaskCmdScript:
			value.TaskName = task.Short
			value.Index = idx
			err = RunScript(ctx, value)
		default:
			err = eris.Errorf("unexpected task command %+v", item)
		}

		if err != nil {
			return asStageError(task.Short, err)
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

func asStageError(stage string, err error) error {
	stageErr, ok := err.(*StageError)
	if !ok {
		var inner *StageError
		if errors.As(err, &inner) {
			// keep the kind and exit code of errors that were wrapped with more context
			stageErr = &StageError{Stage: inner.Stage, Kind: inner.Kind, Code: inner.Code, Err: err}
		} else {
			stageErr = newStageError(KindRuntime, err)
		}
	}

	if stageErr.Stage == "" {
		stageErr.Stage = stage
	}
	return stageErr
}

// RunScript executes a shell script. Relative directories are resolved against the project
// root of the running task. Scripts only log their statements during a dry run.
func RunScript(ctx context.Context, script TaskCmdScript) error {
	dir := script.Dir
	dryRun := false
	if rctx := getRuntimeCtx(ctx); rctx != nil {
		dryRun = rctx.dryRun
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(rctx.projectRoot, dir)
		}
	}
	if dir == "" {
		dir = "."
	}

	out, errOut := getStdio(ctx)
	params := append([]string{"-e", "--"}, script.Args...)
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(getScriptEnv(script)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, out, errOut),
		interp.Params(params...),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)
	strBuffer := strings.Builder{}

	stmts, err := script.ToShellStmts(parser)
	if err != nil {
		return ConfigError(eris.Wrap(err, "failed to parse shell script"))
	}

	for _, stm := range stmts {
		strBuffer.Reset()
		printer.Print(&strBuffer, stm)
		log(ctx).Info().
			Bool("command", true).
			Msg(strBuffer.String())

		if dryRun {
			continue
		}

		err = runner.Run(ctx, stm)
		if err != nil {
			return err
		}

		if runner.Exited() {
			return nil
		}
	}

	return nil
}
