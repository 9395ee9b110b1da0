package theme

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ToolStatus describes whether the program behind a tool command can be found
type ToolStatus struct {
	Name    string
	Program string
	// Path is empty for shell builtins and missing programs.
	Path  string
	Found bool
}

func (p *Pipeline) localBin() string {
	return p.Paths.Local(filepath.Join("node_modules", ".bin"))
}

// toolEnv returns vars plus a PATH that prefers the project's node_modules/.bin
func (p *Pipeline) toolEnv(vars map[string]string) map[string]string {
	env := make(map[string]string, len(vars)+1)
	for name, value := range vars {
		env[name] = value
	}
	env["PATH"] = p.localBin() + string(os.PathListSeparator) + os.Getenv("PATH")
	return env
}

// programName returns the first program a shell command calls
func programName(script string) (string, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		return "", eris.Wrapf(err, "failed to parse %q", script)
	}

	program := ""
	syntax.Walk(file, func(node syntax.Node) bool {
		if program != "" {
			return false
		}
		if call, ok := node.(*syntax.CallExpr); ok && len(call.Args) > 0 {
			program = call.Args[0].Lit()
			return false
		}
		return true
	})

	if program == "" {
		return "", eris.Errorf("%q doesn't call a program", script)
	}
	return program, nil
}

// CheckTools resolves the external tools the way the tool stages do: node_modules/.bin
// first, then PATH.
func (p *Pipeline) CheckTools() ([]ToolStatus, error) {
	tools := []struct {
		name   string
		script string
	}{
		{"sass", p.Project.Tools.Sass},
		{"stylelint", p.Project.Tools.Stylelint},
		{"jshint", p.Project.Tools.JSHint},
	}

	result := make([]ToolStatus, 0, len(tools))
	for _, tool := range tools {
		program, err := programName(tool.script)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid %s command", tool.name)
		}

		status := ToolStatus{Name: tool.name, Program: program}
		switch {
		case interp.IsBuiltin(program):
			status.Found = true
		case strings.ContainsRune(program, '/'):
			path := p.Paths.Local(filepath.FromSlash(program))
			if resolved, err := exec.LookPath(path); err == nil {
				status.Path, status.Found = resolved, true
			}
		default:
			if resolved, err := exec.LookPath(filepath.Join(p.localBin(), program)); err == nil {
				status.Path, status.Found = resolved, true
			} else if resolved, err := exec.LookPath(program); err == nil {
				status.Path, status.Found = resolved, true
			}
		}

		result = append(result, status)
	}

	return result, nil
}
