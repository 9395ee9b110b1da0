package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	docCache     map[string]interface{}
	filepath     string
	projectRoot  string
}

// ScriptOption is an option declared by a config script through option()
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

// Default returns the option's default value
func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// ConfigScript holds the result of evaluating a configuration script
type ConfigScript struct {
	// Globals contains every top-level value that could be converted to plain Go values.
	// Names starting with an underscore are private to the script and skipped.
	Globals map[string]interface{}
	Options map[string]ScriptOption
}

// OptionNames returns the declared option names in alphabetical order
func (c *ConfigScript) OptionNames() []string {
	names := make([]string, 0, len(c.Options))
	for name := range c.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// * Helpers

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// EvalConfigFile reads and evaluates a configuration script. vars are exposed to the script
// as predeclared globals, options are the values for option() calls.
func EvalConfigFile(ctx context.Context, filename, projectRoot string, vars map[string]interface{}, options map[string]string) (*ConfigScript, error) {
	filename, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	script, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read file")
	}

	return EvalConfigSource(ctx, filename, script, projectRoot, vars, options)
}

// EvalConfigSource evaluates a configuration script that has already been loaded. filename
// is used for error messages and to resolve relative paths.
func EvalConfigSource(ctx context.Context, filename string, script []byte, projectRoot string, vars map[string]interface{}, options map[string]string) (*ConfigScript, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(filename) {
		filename = filepath.Join(projectRoot, filename)
	}

	builtins := starlark.StringDict{
		"OS":        starlark.String(runtime.GOOS),
		"ARCH":      starlark.String(runtime.GOARCH),
		"info":      starlark.NewBuiltin("info", starInfo),
		"warn":      starlark.NewBuiltin("warn", starWarn),
		"error":     starlark.NewBuiltin("error", starError),
		"option":    starlark.NewBuiltin("option", option),
		"getenv":    starlark.NewBuiltin("getenv", getenv),
		"read_json": starlark.NewBuiltin("read_json", readJSON),
		"read_yaml": starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":     starlark.NewBuiltin("isdir", starIsdir),
		"isfile":    starlark.NewBuiltin("isfile", starIsfile),
	}

	for name, value := range vars {
		converted, err := interfaceToStarlark(value)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to expose %s to the script", name)
		}
		builtins[name] = converted
	}

	if options == nil {
		options = map[string]string{}
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		docCache:     make(map[string]interface{}),
	}
	thread.SetLocal("parserCtx", &threadCtx)

	globals, err := starlark.ExecFile(thread, simplifyPath(&threadCtx, filename), script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", simplifyPath(&threadCtx, filename), evalError.Backtrace())
		}
		return nil, eris.Wrap(err, "failed to execute")
	}

	result := &ConfigScript{
		Globals: make(map[string]interface{}, len(globals)),
		Options: threadCtx.options,
	}

	for name, value := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}

		converted, ok, err := starlarkToInterface(value)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read global %s of %s", name, simplifyPath(&threadCtx, filename))
		}
		if ok {
			result.Globals[name] = converted
		}
	}

	for name := range options {
		if _, declared := result.Options[name]; !declared {
			log(ctx).Warn().Msgf("%s does not declare the option %s", simplifyPath(&threadCtx, filename), name)
		}
	}

	return result, nil
}
