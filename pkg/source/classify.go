package source

import (
	"fmt"
	"maps"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
)

const (
	archiveTypeCrate     = "tar-gzip"
	crateStripComponents = 1
)

// SubdirResolver locates a package inside its git repository. Lock files do
// not record this, so it has to come from somewhere else, typically an
// existing cargo checkout.
type SubdirResolver interface {
	// Subdir returns the slash-separated path of the package relative to the
	// repository root, or ok=false if unknown.
	Subdir(id lock.ID, origin lock.Git) (dir string, ok bool)
}

// ManifestResolver produces a self-contained Cargo.toml for a git package.
// Crates inside a git workspace may inherit fields from the workspace root
// manifest, which is not copied into the vendor directory, so the inherited
// values have to be merged in ahead of time.
type ManifestResolver interface {
	// Manifest returns the normalized manifest, or ok=false if the package
	// could not be found.
	Manifest(id lock.ID, origin lock.Git, subdir string) (manifest string, ok bool, err error)
}

// Options configures a [Classifier].
type Options struct {
	// Registries maps registry index URLs to download templates. crates.io is
	// always known; entries here override or extend it.
	Registries map[string]string

	// Exclude lists package names that are left out of the source set.
	Exclude []string

	// Subdirs resolves git package subdirectories. Nil means packages are
	// assumed to live at the repository root.
	Subdirs SubdirResolver

	// Manifests normalizes git package manifests. Nil leaves the vendored
	// Cargo.toml as checked out.
	Manifests ManifestResolver
}

// Classifier maps locked packages to source entries. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	registries map[string]string
	exclude    map[string]bool
	subdirs    SubdirResolver
	manifests  ManifestResolver
}

// NewClassifier validates opts and returns a Classifier.
func NewClassifier(opts Options) (*Classifier, error) {
	registries := defaultRegistries()
	for index, tmpl := range opts.Registries {
		if err := ValidateTemplate(tmpl); err != nil {
			return nil, err
		}
		registries[normalizeIndexURL(index)] = tmpl
	}

	exclude := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		exclude[name] = true
	}

	return &Classifier{
		registries: registries,
		exclude:    exclude,
		subdirs:    opts.Subdirs,
		manifests:  opts.Manifests,
	}, nil
}

// Registries returns a copy of the known index URL to template mapping.
func (c *Classifier) Registries() map[string]string { return maps.Clone(c.registries) }

// Excluded reports whether the package name was excluded by configuration.
func (c *Classifier) Excluded(name string) bool { return c.exclude[name] }

// Classify returns the source entry for n, or nil for packages that are not
// fetched: local path packages and excluded names.
//
// It fails with UNCLASSIFIABLE_ORIGIN when the origin lacks what an offline
// fetch needs, e.g. a git source without a commit or a registry without a
// known download template.
func (c *Classifier) Classify(n lock.Node) (Entry, error) {
	if c.exclude[n.ID.Name] {
		return nil, nil
	}

	switch o := n.Origin.(type) {
	case lock.Registry:
		return c.classifyRegistry(n, o)
	case lock.Git:
		return c.classifyGit(n, o)
	case lock.Path:
		return nil, nil
	default:
		return nil, errors.ForPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(),
			"unknown origin %T", n.Origin)
	}
}

func (c *Classifier) classifyRegistry(n lock.Node, o lock.Registry) (Entry, error) {
	if n.Checksum == "" {
		return nil, errors.ForPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(),
			"registry package has no checksum")
	}
	if o.IndexURL == "" {
		return nil, errors.ForPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(),
			"registry source has no index URL")
	}
	tmpl, ok := c.registries[normalizeIndexURL(o.IndexURL)]
	if !ok {
		return nil, errors.ForPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(),
			"no download template for registry %s", o.IndexURL)
	}

	return Archive{
		Package:         n.ID,
		URL:             DownloadURL(tmpl, n.ID.Name, n.ID.Version, n.Checksum),
		SHA256:          n.Checksum,
		ArchiveType:     archiveTypeCrate,
		StripComponents: crateStripComponents,
		Dest:            vendorDir(n.ID),
		Registry:        o,
	}, nil
}

func (c *Classifier) classifyGit(n lock.Node, o lock.Git) (Entry, error) {
	if o.Commit == "" {
		return nil, errors.ForPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(),
			"git source %s is not pinned to a commit", o.URL)
	}
	if !IsCommitHash(o.Commit) {
		return nil, errors.ForPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(),
			"git source %s is pinned to %q, which is not a commit hash", o.URL, o.Commit)
	}

	canonical, err := CanonicalGitURL(o.URL)
	if err != nil {
		return nil, errors.WrapPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(), err,
			"invalid git url")
	}

	var subdir string
	if c.subdirs != nil {
		if dir, ok := c.subdirs.Subdir(n.ID, o); ok && dir != "" && dir != "." {
			if err := errors.ValidatePath(dir); err != nil {
				return nil, errors.WrapPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(), err,
					"invalid subdirectory")
			}
			subdir = dir
		}
	}

	var manifest string
	if c.manifests != nil {
		m, ok, err := c.manifests.Manifest(n.ID, o, subdir)
		if err != nil {
			return nil, errors.WrapPackage(errors.ErrCodeUnclassifiableOrigin, n.ID.String(), err,
				"normalize manifest")
		}
		if ok {
			manifest = m
		}
	}

	return Git{
		Package:   n.ID,
		URL:       canonical,
		Commit:    o.Commit,
		Subdir:    subdir,
		Dest:      checkoutDir(canonical, o.Commit),
		VendorDir: vendorDir(n.ID),
		Declared:  o.Ref,
		Manifest:  manifest,
	}, nil
}

func vendorDir(id lock.ID) string {
	return fmt.Sprintf("%s/%s-%s", VendorDir, id.Name, id.Version)
}

// Root returns the directory source for the root package.
func Root(id lock.ID) Directory {
	return Directory{Package: id, Path: "."}
}
