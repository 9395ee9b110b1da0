package theme

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/cortesi/moddwatch"
	"github.com/rotisserie/eris"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

// WatchCategory maps a set of source patterns to the tasks that rebuild them
type WatchCategory struct {
	Name string
	// Patterns are slash separated and relative to the project root.
	Patterns []string
	Tasks    []string
}

// WatchCategories returns the watched source sets in the order their tasks run
func (p *Pipeline) WatchCategories() []WatchCategory {
	rel := func(cat Category, pattern string) string {
		return p.Paths.Rel(p.Paths.Src(cat)) + "/" + pattern
	}

	return []WatchCategory{
		{
			Name:     "styles",
			Patterns: []string{rel(Styles, "**/*.scss")},
			Tasks:    []string{"css"},
		},
		{
			Name:     "scripts",
			Patterns: []string{rel(Scripts, "**")},
			Tasks:    []string{"lint:js", "js:bundle", "js:minify"},
		},
		{
			Name:     "templates",
			Patterns: []string{rel(Templates, "**")},
			Tasks:    []string{"copy:html", "stamp:manifest"},
		},
	}
}

// RunFunc runs a single task of tasks
type RunFunc func(ctx context.Context, task string, tasks buildsys.TaskList) error

// Watcher rebuilds the affected parts of the theme whenever sources change
type Watcher struct {
	Pipeline *Pipeline
	Debounce time.Duration
	// Run defaults to buildsys.RunTask in the project root.
	Run RunFunc
}

// NewWatcher creates a watcher for p
func NewWatcher(p *Pipeline, debounce time.Duration) *Watcher {
	return &Watcher{
		Pipeline: p,
		Debounce: debounce,
		Run: func(ctx context.Context, task string, tasks buildsys.TaskList) error {
			return buildsys.RunTask(ctx, p.Paths.Root, task, tasks, false)
		},
	}
}

// Affected returns the categories that contain at least one of paths
func (w *Watcher) Affected(paths []string) ([]WatchCategory, error) {
	result := make([]WatchCategory, 0)
	for _, category := range w.Pipeline.WatchCategories() {
		for _, path := range paths {
			matched, err := matchAny(category.Patterns, w.relative(path))
			if err != nil {
				return nil, err
			}
			if matched {
				result = append(result, category)
				break
			}
		}
	}
	return result, nil
}

func (w *Watcher) relative(path string) string {
	if filepath.IsAbs(path) {
		path = w.Pipeline.Paths.Rel(path)
	}
	return filepath.ToSlash(path)
}

// Handle runs the tasks of every category affected by paths. Each task runs at most once
// per call.
func (w *Watcher) Handle(ctx context.Context, paths []string) error {
	affected, err := w.Affected(paths)
	if err != nil {
		return buildsys.ConfigError(err)
	}
	if len(affected) == 0 {
		buildsys.Log(ctx).Debug().Strs("paths", paths).Msg("Ignoring changes outside of the watched sources")
		return nil
	}

	tasks := w.Pipeline.Tasks()
	refs := make([]string, 0)
	names := make([]string, 0, len(affected))
	for _, category := range affected {
		refs = append(refs, category.Tasks...)
		names = append(names, category.Name)
	}
	tasks["watch:batch"] = &buildsys.Task{
		Short:  "watch:batch",
		Desc:   "Rebuild changed sources",
		Cmds:   buildsys.Refs(refs...),
		Hidden: true,
	}

	logger := buildsys.Log(ctx).With().Str("build", nanoid.New()).Logger()
	ctx = buildsys.WithLogger(ctx, &logger)
	logger.Info().Msgf("Rebuilding %s", strings.Join(names, ", "))

	return w.Run(ctx, "watch:batch", tasks)
}

func (w *Watcher) patterns() ([]string, []string) {
	includes := make([]string, 0)
	for _, category := range w.Pipeline.WatchCategories() {
		includes = append(includes, category.Patterns...)
	}

	excludes := []string{
		"**/.*",
		"**/.*/**",
		"node_modules/**",
		w.Pipeline.Paths.Rel(w.Pipeline.Paths.Output) + "/**",
	}
	return includes, excludes
}

// Watch blocks until ctx is cancelled and handles every batch of changes synchronously.
// Failed rebuilds are logged and don't stop the watcher.
func (w *Watcher) Watch(ctx context.Context) error {
	includes, excludes := w.patterns()
	for _, pattern := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(pattern) {
			return buildsys.ConfigError(eris.Errorf("invalid watch pattern %s", pattern))
		}
	}

	changes := make(chan *moddwatch.Mod, 1)
	watcher, err := moddwatch.Watch(w.Pipeline.Paths.Root, includes, excludes, w.Debounce, changes)
	if err != nil {
		return eris.Wrap(err, "failed to start watching")
	}
	defer watcher.Stop()

	buildsys.Log(ctx).Info().Strs("patterns", includes).Msg("Watching for changes")
	for {
		select {
		case <-ctx.Done():
			buildsys.Log(ctx).Info().Msg("Stopped watching")
			return nil
		case mod, ok := <-changes:
			if !ok {
				return nil
			}
			if mod == nil {
				continue
			}

			paths := make([]string, 0, len(mod.Changed)+len(mod.Added)+len(mod.Deleted))
			paths = append(paths, mod.Changed...)
			paths = append(paths, mod.Added...)
			paths = append(paths, mod.Deleted...)

			err := w.Handle(ctx, paths)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				buildsys.Log(ctx).Error().Err(err).Msg("Rebuild failed, waiting for the next change")
			} else {
				buildsys.Log(ctx).Info().Msg("Rebuild finished")
			}
		}
	}
}
