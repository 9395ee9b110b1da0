package theme

import (
	"path/filepath"
)

// Category identifies one kind of asset
type Category string

const (
	Styles    Category = "styles"
	Fonts     Category = "fonts"
	Images    Category = "images"
	Scripts   Category = "scripts"
	Templates Category = "templates"
)

// PathTable resolves source and destination directories. It is built once per invocation so
// every destination shares the same version string.
type PathTable struct {
	Root    string
	Version string
	// Output contains all built themes, ThemeDir is <Output>/<theme>-<Version>.
	Output   string
	ThemeDir string

	sources      map[Category]string
	destinations map[Category]string
}

// NewPathTable derives all absolute paths of project for version
func NewPathTable(root string, project *Project, version string) (*PathTable, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	output := filepath.Join(root, project.Output)
	themeDir := filepath.Join(output, project.Theme+"-"+version)

	table := &PathTable{
		Root:         root,
		Version:      version,
		Output:       output,
		ThemeDir:     themeDir,
		sources:      make(map[Category]string),
		destinations: make(map[Category]string),
	}

	for name, src := range project.Sources.byName() {
		table.sources[Category(name)] = filepath.Join(root, src)
	}
	for name, dest := range project.Destinations.byName() {
		table.destinations[Category(name)] = filepath.Join(themeDir, dest)
	}

	return table, nil
}

// Src returns the source directory of cat joined with elem
func (p *PathTable) Src(cat Category, elem ...string) string {
	return filepath.Join(append([]string{p.sources[cat]}, elem...)...)
}

// Dest returns the destination directory of cat joined with elem
func (p *PathTable) Dest(cat Category, elem ...string) string {
	return filepath.Join(append([]string{p.destinations[cat]}, elem...)...)
}

// Rel returns path relative to the project root for log messages
func (p *PathTable) Rel(path string) string {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Local resolves a path from the configuration against the project root
func (p *PathTable) Local(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, path)
}
