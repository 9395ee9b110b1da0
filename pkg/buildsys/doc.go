// Package buildsys implements a minimal task engine: a static list of named tasks with
// dependency edges, ordered task references and parallel groups, a mvdan.cc/sh runtime for
// external tools and Starlark scripts for project configuration.
// Nothing here knows about themes; pkg/theme declares the actual pipeline.
package buildsys
