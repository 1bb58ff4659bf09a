package source

import (
	"cmp"
	"fmt"

	"github.com/matzehuels/flatcargo/pkg/lock"
)

// Kind is the kind of a source entry. Kinds sort in declaration order.
type Kind int

const (
	KindArchive Kind = iota
	KindGit
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindGit:
		return "git"
	case KindDirectory:
		return "dir"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Key identifies a fetch target. Two entries with equal keys download the
// same bytes and are collapsed into one.
type Key struct {
	Kind      Kind
	URL       string
	Integrity string // Checksum for archives, commit for git
	Subdir    string // Git only
}

// Compare orders keys by kind, then lexically by URL, integrity and subdir.
func (k Key) Compare(other Key) int {
	if c := cmp.Compare(k.Kind, other.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(k.URL, other.URL); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Integrity, other.Integrity); c != 0 {
		return c
	}
	return cmp.Compare(k.Subdir, other.Subdir)
}

// Entry is a fetchable build source. The set of implementations is closed.
type Entry interface {
	Kind() Kind
	Key() Key
	isEntry()
}

// Archive is a registry crate tarball.
type Archive struct {
	Package         lock.ID
	URL             string
	SHA256          string // Verbatim from the lock
	ArchiveType     string // e.g. "tar-gzip"
	StripComponents int
	Dest            string        // Unpack directory, relative to the build root
	Registry        lock.Registry // Index the package was resolved from
}

func (Archive) isEntry()         {}
func (Archive) Kind() Kind       { return KindArchive }
func (a Archive) Key() Key       { return Key{Kind: KindArchive, URL: a.URL, Integrity: a.SHA256} }
func (a Archive) String() string { return fmt.Sprintf("archive %s sha256:%s", a.URL, a.SHA256) }

// Git is a repository checkout pinned to a commit.
type Git struct {
	Package   lock.ID
	URL       string      // Canonical repository URL
	Commit    string      // Full or abbreviated commit hash
	Subdir    string      // Package directory inside the checkout, if known
	Dest      string      // Checkout directory, relative to the build root
	VendorDir string      // Directory the package is copied into
	Declared  lock.GitRef // Ref from Cargo.toml; used for source replacement only
	Manifest  string      // Normalized Cargo.toml written over the vendored copy, if known
}

func (Git) isEntry()   {}
func (Git) Kind() Kind { return KindGit }
func (g Git) Key() Key {
	return Key{Kind: KindGit, URL: g.URL, Integrity: g.Commit, Subdir: g.Subdir}
}
func (g Git) String() string {
	if g.Subdir != "" {
		return fmt.Sprintf("git %s@%s:%s", g.URL, g.Commit, g.Subdir)
	}
	return fmt.Sprintf("git %s@%s", g.URL, g.Commit)
}

// PackageDir returns the directory inside the checkout holding the package.
func (g Git) PackageDir() string {
	if g.Subdir == "" {
		return g.Dest
	}
	return g.Dest + "/" + g.Subdir
}

// Directory is the root package's own source tree.
type Directory struct {
	Package lock.ID
	Path    string
}

func (Directory) isEntry()         {}
func (Directory) Kind() Kind       { return KindDirectory }
func (d Directory) Key() Key       { return Key{Kind: KindDirectory, URL: d.Path} }
func (d Directory) String() string { return "dir " + d.Path }

func packageOf(e Entry) lock.ID {
	switch v := e.(type) {
	case Archive:
		return v.Package
	case Git:
		return v.Package
	case Directory:
		return v.Package
	default:
		return lock.ID{}
	}
}
