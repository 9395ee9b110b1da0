package theme

import (
	"context"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

// Commands are the tasks exposed as top level commands, in the order they are listed
var Commands = []string{"build", "build-production", "css", "css-production", "html"}

// ConcurrentTasks run in parallel during a build
var ConcurrentTasks = []string{"js:bundle", "copy:fonts", "copy:img", "copy:map", "copy:html", "stamp:manifest", "lint:js"}

func stage(name, desc string, fn func(context.Context) error, deps ...string) *buildsys.Task {
	return &buildsys.Task{
		Short: name,
		Desc:  desc,
		Deps:  deps,
		Cmds:  []buildsys.TaskCmd{buildsys.Func(name, fn)},
	}
}

func group(name, desc string, refs ...string) *buildsys.Task {
	return &buildsys.Task{
		Short: name,
		Desc:  desc,
		Cmds:  buildsys.Refs(refs...),
	}
}

// Tasks returns the static task graph of the pipeline
func (p *Pipeline) Tasks() buildsys.TaskList {
	tasks := buildsys.TaskList{}
	add := func(task *buildsys.Task) {
		tasks[task.Short] = task
	}

	add(stage("clean", "Remove previous theme builds", p.Clean))
	add(stage("js:bundle", "Bundle and transpile the script entry point", p.BundleScripts))
	add(stage("js:minify", "Minify the bundled script", p.MinifyScripts, "js:bundle"))
	add(stage("lint:js", "Lint the script sources with jshint", p.LintScripts))
	add(stage("copy:fonts", "Copy fonts", p.CopyFonts))
	add(stage("copy:img", "Copy images", p.CopyImages))
	add(stage("copy:html", "Copy templates except the manifest", p.CopyTemplates))
	add(stage("copy:map", "Copy the map library", p.CopyMapLibrary))
	add(stage("stamp:manifest", "Write the manifest with the current version", p.StampManifest))
	add(stage("lint:css", "Lint the stylesheet sources with stylelint", p.LintStyles))
	add(stage("css:compile", "Compile the stylesheets", p.CompileStyles))
	add(stage("css:purge", "Remove unused selectors", p.PurgeStyles, "css:compile"))
	add(stage("css:postprocess", "Add vendor prefixes and compress the stylesheets", p.PostProcessStyles, "css:compile"))
	add(stage("compress", "Write brotli compressed copies of the assets", p.Precompress))

	concurrent := group("concurrent", "Build scripts, copy assets and lint scripts in parallel", ConcurrentTasks...)
	concurrent.Parallel = true
	add(concurrent)

	add(group("css", "Lint, compile and post-process the stylesheets", "lint:css", "css:compile", "css:postprocess"))
	add(group("css-production", "Lint, compile, purge and post-process the stylesheets", "lint:css", "css:compile", "css:purge", "css:postprocess"))
	add(group("html", "Copy templates and images", "copy:html", "copy:img"))
	add(group("build", "Build the theme", "clean", "concurrent", "js:minify", "css"))
	add(group("build-production", "Build the theme for production", "clean", "concurrent", "js:minify", "css-production", "compress"))

	return tasks
}
