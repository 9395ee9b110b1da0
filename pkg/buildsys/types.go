package buildsys

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/syntax"
)

// TaskCmd is a single step of a task. It is one of TaskCmdScript, TaskCmdTaskRef or
// TaskCmdFunc.
type TaskCmd interface {
	Describe() string
}

// TaskCmdScript runs a shell script through the embedded shell runtime
type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
	// Dir is the working directory; relative paths are resolved against the project root.
	Dir string
	// Env is added to the process environment.
	Env map[string]string
	// Args become the positional parameters ($1, $2, ... and "$@").
	Args []string
}

func (s TaskCmdScript) Describe() string {
	return s.Content
}

// ToShellStmts parses the script content
func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

// TaskCmdTaskRef runs another task by name
type TaskCmdTaskRef struct {
	Name string
}

func (t TaskCmdTaskRef) Describe() string {
	return "task " + t.Name
}

// TaskCmdFunc runs a Go function
type TaskCmdFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (f TaskCmdFunc) Describe() string {
	return f.Name
}

// Task describes one named unit of pipeline work
type Task struct {
	Short string
	Desc  string
	// Deps have to finish before any of Cmds runs.
	Deps []string
	Cmds []TaskCmd
	// Parallel runs every command at the same time and waits for all of them. Only task
	// references are allowed in a parallel task.
	Parallel bool
	Hidden   bool
}

// TaskList maps short names to each relevant task
type TaskList map[string]*Task

// Refs returns the names of the tasks referenced by t's commands
func (t *Task) Refs() []string {
	refs := make([]string, 0, len(t.Cmds))
	for _, cmd := range t.Cmds {
		if ref, ok := cmd.(TaskCmdTaskRef); ok {
			refs = append(refs, ref.Name)
		}
	}
	return refs
}

// Ref is a shorthand for a TaskCmdTaskRef
func Ref(name string) TaskCmd {
	return TaskCmdTaskRef{Name: name}
}

// Refs is a shorthand for a list of TaskCmdTaskRef
func Refs(names ...string) []TaskCmd {
	cmds := make([]TaskCmd, len(names))
	for idx, name := range names {
		cmds[idx] = TaskCmdTaskRef{Name: name}
	}
	return cmds
}

// Func is a shorthand for a TaskCmdFunc
func Func(name string, fn func(ctx context.Context) error) TaskCmd {
	return TaskCmdFunc{Name: name, Fn: fn}
}
