package buildsys

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that every dependency and task reference exists, that parallel tasks only
// contain task references and that the graph formed by both kinds of edges is acyclic.
func Validate(tasks TaskList) error {
	names := sortedNames(tasks)

	for _, name := range names {
		task := tasks[name]
		if task.Short != name {
			return eris.Errorf("task %s is registered under the name %s", task.Short, name)
		}

		for _, dep := range task.Deps {
			if _, ok := tasks[dep]; !ok {
				return eris.Errorf("task %s depends on unknown task %s", name, dep)
			}
		}

		for idx, cmd := range task.Cmds {
			switch value := cmd.(type) {
			case TaskCmdTaskRef:
				if _, ok := tasks[value.Name]; !ok {
					return eris.Errorf("task %s references unknown task %s", name, value.Name)
				}
			case TaskCmdFunc:
				if value.Fn == nil {
					return eris.Errorf("command #%d of task %s has no function", idx, name)
				}
			}

			if task.Parallel {
				if _, ok := cmd.(TaskCmdTaskRef); !ok {
					return eris.Errorf("parallel task %s may only reference other tasks but command #%d is %s", name, idx, cmd.Describe())
				}
			}
		}
	}

	if cycle := findCycle(tasks, names); cycle != nil {
		return eris.Errorf("task graph contains a cycle: %s", strings.Join(cycle, " -> "))
	}

	return nil
}

// TopologicalOrder returns the task names in an order where every task comes after its
// dependencies and the tasks it references. Ties are broken by name.
func TopologicalOrder(tasks TaskList) ([]string, error) {
	if err := Validate(tasks); err != nil {
		return nil, err
	}

	names := sortedNames(tasks)
	visited := make(map[string]bool, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true

		for _, next := range edges(tasks[name]) {
			visit(next)
		}
		order = append(order, name)
	}

	for _, name := range names {
		visit(name)
	}
	return order, nil
}

func edges(task *Task) []string {
	out := make([]string, 0, len(task.Deps)+len(task.Cmds))
	out = append(out, task.Deps...)
	out = append(out, task.Refs()...)
	sort.Strings(out)
	return out
}

func sortedNames(tasks TaskList) []string {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func findCycle(tasks TaskList, names []string) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(names))
	stack := make([]string, 0)
	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)

		for _, next := range edges(tasks[name]) {
			switch color[next] {
			case white:
				if dfs(next) {
					return true
				}
			case gray:
				// back edge; the cycle is the stack suffix starting at next
				for idx := len(stack) - 1; idx >= 0; idx-- {
					if stack[idx] == next {
						cycle = append(append([]string{}, stack[idx:]...), next)
						return true
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range names {
		if color[name] == white && dfs(name) {
			return cycle
		}
	}
	return nil
}
