package workspace

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/flatcargo/pkg/errors"
)

// ManifestName is the cargo manifest file name.
const ManifestName = "Cargo.toml"

// Location is where a local package was found.
type Location struct {
	Dir    string // Absolute package directory
	Inside bool   // Dir is within the workspace root
}

// Workspace is a loaded cargo project.
type Workspace struct {
	Root        string // Absolute project directory
	RootPackage string // [package] name of the root manifest; empty for virtual workspaces

	packages map[string]Location
}

type manifest struct {
	Package *struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"`
	} `toml:"package"`
	Workspace *struct {
		Members      []string       `toml:"members"`
		Exclude      []string       `toml:"exclude"`
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
	depTables
	Target map[string]depTables `toml:"target"`
}

type depTables struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

func (d depTables) all() []map[string]any {
	return []map[string]any{d.Dependencies, d.DevDependencies, d.BuildDependencies}
}

// Load reads the cargo project rooted at dir.
func Load(dir string) (*Workspace, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", dir)
	}

	m, err := readManifest(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, err
	}

	w := &Workspace{Root: root, packages: make(map[string]Location)}
	l := &loader{w: w, visited: make(map[string]bool)}

	if m.Workspace != nil {
		l.workspaceDeps = m.Workspace.Dependencies
	}
	if m.Package != nil {
		w.RootPackage = m.Package.Name
	}
	l.visit(root, m)

	if m.Workspace != nil {
		members, err := expandMembers(root, m.Workspace.Members, m.Workspace.Exclude)
		if err != nil {
			return nil, err
		}
		for _, dir := range members {
			l.load(dir)
		}
	}
	return w, nil
}

// Locate returns where the named local package lives.
func (w *Workspace) Locate(name string) (Location, bool) {
	loc, ok := w.packages[name]
	return loc, ok
}

// Packages returns the names of all local packages found, sorted.
func (w *Workspace) Packages() []string {
	names := make([]string, 0, len(w.packages))
	for name := range w.packages {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (w *Workspace) inside(dir string) bool {
	rel, err := filepath.Rel(w.Root, dir)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

type loader struct {
	w             *Workspace
	workspaceDeps map[string]any
	visited       map[string]bool
}

// load reads the manifest in dir, records its package and follows its path
// dependencies. Unreadable manifests are skipped: the package stays unknown
// and surfaces later as a warning.
func (l *loader) load(dir string) {
	if l.visited[dir] {
		return
	}
	m, err := readManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		l.visited[dir] = true
		return
	}
	l.visit(dir, m)
}

func (l *loader) visit(dir string, m *manifest) {
	l.visited[dir] = true
	if m.Package != nil && m.Package.Name != "" {
		if _, ok := l.w.packages[m.Package.Name]; !ok {
			l.w.packages[m.Package.Name] = Location{Dir: dir, Inside: l.w.inside(dir)}
		}
	}

	tables := m.all()
	for _, target := range m.Target {
		tables = append(tables, target.all()...)
	}
	for _, table := range tables {
		for _, name := range sortedKeys(table) {
			if depDir, ok := l.pathOf(dir, name, table[name]); ok {
				l.load(depDir)
			}
		}
	}
}

// pathOf returns the directory of a path dependency, following
// `workspace = true` into [workspace.dependencies].
func (l *loader) pathOf(manifestDir, name string, spec any) (string, bool) {
	t, ok := spec.(map[string]any)
	if !ok {
		return "", false
	}
	if inherit, _ := t["workspace"].(bool); inherit {
		if t, ok = l.workspaceDeps[name].(map[string]any); !ok {
			return "", false
		}
		manifestDir = l.w.Root
	}
	p, ok := t["path"].(string)
	if !ok || p == "" {
		return "", false
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), true
	}
	return filepath.Join(manifestDir, filepath.FromSlash(p)), true
}

func expandMembers(root string, members, exclude []string) ([]string, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[filepath.Join(root, filepath.FromSlash(e))] = true
	}

	var dirs []string
	for _, pattern := range members {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "workspace member pattern %q", pattern)
		}
		for _, dir := range matches {
			if excluded[dir] {
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
				continue
			}
			dirs = append(dirs, dir)
		}
	}
	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode %s", path)
	}
	return &m, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
