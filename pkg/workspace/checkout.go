package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/golang-lru/v2"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/source"
)

// skipDirs are never descended into while scanning a checkout.
var skipDirs = map[string]bool{".git": true, "target": true}

// checkoutCacheSize bounds how many scanned checkouts are remembered.
// Lock files rarely pin more than a handful of git repositories.
const checkoutCacheSize = 128

// CheckoutResolver finds git packages inside cargo's checkout cache
// ($CARGO_HOME/git/checkouts/<repo>-<hash>/<short commit>). It implements
// [source.SubdirResolver] and [source.ManifestResolver] and is safe for
// concurrent use.
type CheckoutResolver struct {
	cargoHome string

	mu    sync.Mutex                            // serialises scans of the same tree
	cache *lru.Cache[string, map[string]string] // checkout dir -> package name -> subdir
}

// NewCheckoutResolver returns a resolver reading from cargoHome. An empty
// cargoHome falls back to $CARGO_HOME, then ~/.cargo.
func NewCheckoutResolver(cargoHome string) *CheckoutResolver {
	if cargoHome == "" {
		cargoHome = DefaultCargoHome()
	}
	cache, _ := lru.New[string, map[string]string](checkoutCacheSize) // only fails for size <= 0
	return &CheckoutResolver{
		cargoHome: cargoHome,
		cache:     cache,
	}
}

// DefaultCargoHome returns $CARGO_HOME or ~/.cargo.
func DefaultCargoHome() string {
	if h := os.Getenv("CARGO_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cargo"
	}
	return filepath.Join(home, ".cargo")
}

// Subdir implements [source.SubdirResolver].
func (r *CheckoutResolver) Subdir(id lock.ID, origin lock.Git) (string, bool) {
	if !source.IsCommitHash(origin.Commit) {
		return "", false
	}
	canonical, err := source.CanonicalGitURL(origin.URL)
	if err != nil {
		return "", false
	}

	for _, dir := range r.checkouts(source.RepoName(canonical), origin.Commit) {
		if subdir, ok := r.packages(dir)[id.Name]; ok {
			return subdir, true
		}
	}
	return "", false
}

// Manifest implements [source.ManifestResolver]. Fields the package inherits
// from its workspace are resolved against the nearest enclosing manifest
// with a [workspace] table, never looking above the checkout root. It
// returns ok=false when the package is not checked out or its manifest is
// already self-contained.
func (r *CheckoutResolver) Manifest(id lock.ID, origin lock.Git, subdir string) (string, bool, error) {
	if !source.IsCommitHash(origin.Commit) {
		return "", false, nil
	}
	canonical, err := source.CanonicalGitURL(origin.URL)
	if err != nil {
		return "", false, nil
	}

	for _, dir := range r.checkouts(source.RepoName(canonical), origin.Commit) {
		rel := subdir
		if rel == "" {
			var ok bool
			if rel, ok = r.packages(dir)[id.Name]; !ok {
				continue
			}
		}
		crateDir := filepath.Join(dir, filepath.FromSlash(rel))
		if _, err := os.Stat(filepath.Join(crateDir, ManifestName)); err != nil {
			continue
		}
		return normalizeCheckout(dir, crateDir)
	}
	return "", false, nil
}

func normalizeCheckout(root, crateDir string) (string, bool, error) {
	m, err := decodeTable(filepath.Join(crateDir, ManifestName))
	if err != nil {
		return "", false, err
	}

	var ws map[string]any
	wsRel := "."
	for dir := crateDir; ; dir = filepath.Dir(dir) {
		t, err := decodeTable(filepath.Join(dir, ManifestName))
		if err == nil && t["workspace"] != nil {
			ws = table(t, "workspace")
			rel, err := filepath.Rel(crateDir, dir)
			if err != nil {
				return "", false, errors.Wrap(errors.ErrCodeInvalidPath, err, "locate workspace of %s", crateDir)
			}
			wsRel = filepath.ToSlash(rel)
			break
		}
		if dir == root || !strings.HasPrefix(dir, root) {
			break
		}
	}

	changed, err := normalizeManifest(m, ws, wsRel)
	if err != nil || !changed {
		return "", false, err
	}
	out, err := encodeManifest(m)
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

func decodeTable(manifestPath string) (map[string]any, error) {
	var m map[string]any
	if _, err := toml.DecodeFile(manifestPath, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "decode %s", manifestPath)
	}
	return m, nil
}

// checkouts returns candidate checkout directories for a commit, sorted.
// Cargo abbreviates the commit to at least seven characters.
func (r *CheckoutResolver) checkouts(repo, commit string) []string {
	pattern := filepath.Join(r.cargoHome, "git", "checkouts", repo+"-*", commit[:source.ShortCommitLen]+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	dirs := matches[:0]
	for _, m := range matches {
		if strings.HasPrefix(strings.ToLower(commit), strings.ToLower(filepath.Base(m))) {
			dirs = append(dirs, m)
		}
	}
	slices.Sort(dirs)
	return dirs
}

func (r *CheckoutResolver) packages(dir string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pkgs, ok := r.cache.Get(dir); ok {
		return pkgs
	}
	pkgs := scanCheckout(dir)
	r.cache.Add(dir, pkgs)
	return pkgs
}

// scanCheckout maps package names to their slash-separated directory
// relative to root. When a name appears twice the shallowest path wins.
func scanCheckout(root string) map[string]string {
	pkgs := make(map[string]string)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ManifestName {
			return nil
		}
		name := packageName(path)
		if name == "" {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if prev, ok := pkgs[name]; !ok || depth(rel) < depth(prev) {
			pkgs[name] = rel
		}
		return nil
	})
	return pkgs
}

func packageName(manifestPath string) string {
	var m struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if _, err := toml.DecodeFile(manifestPath, &m); err != nil {
		return ""
	}
	return m.Package.Name
}

func depth(rel string) int {
	if rel == "." {
		return 0
	}
	return strings.Count(rel, "/") + 1
}
