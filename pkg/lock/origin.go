package lock

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	registryPrefix = "registry+"
	sparsePrefix   = "sparse+"
	gitPrefix      = "git+"
)

// Origin describes where a package's content comes from. It is a closed set:
// exactly one of [Registry], [Git] or [Path].
type Origin interface {
	// String returns the origin in Cargo.lock source syntax.
	String() string
	isOrigin()
}

// Registry is a package downloaded from a registry index.
type Registry struct {
	IndexURL string // Index URL without the registry+/sparse+ prefix
	Sparse   bool   // Index uses the sparse HTTP protocol
}

func (Registry) isOrigin() {}

func (r Registry) String() string {
	if r.Sparse {
		return sparsePrefix + r.IndexURL
	}
	return registryPrefix + r.IndexURL
}

// RefKind names the kind of git reference a manifest asked for.
type RefKind string

const (
	RefDefault RefKind = ""
	RefBranch  RefKind = "branch"
	RefTag     RefKind = "tag"
	RefRev     RefKind = "rev"
)

// GitRef is the reference declared in Cargo.toml. It is informational only:
// the commit recorded by the lock is what gets fetched.
type GitRef struct {
	Kind RefKind
	Name string
}

// Git is a package checked out from a git repository.
type Git struct {
	URL    string // Repository URL, query and fragment removed
	Commit string // Commit recorded in the fragment; may be empty in a malformed lock
	Ref    GitRef // Declared ref from the query string
}

func (Git) isOrigin() {}

func (g Git) String() string {
	s := gitPrefix + g.URL
	if g.Ref.Kind != RefDefault {
		s += "?" + string(g.Ref.Kind) + "=" + url.QueryEscape(g.Ref.Name)
	}
	if g.Commit != "" {
		s += "#" + g.Commit
	}
	return s
}

// Path is a local package, typically a workspace member. Lock files do not
// record the path itself.
type Path struct{}

func (Path) isOrigin() {}

func (Path) String() string { return "" }

// ParseOrigin parses a Cargo.lock source string. An empty string is a [Path]
// origin.
func ParseOrigin(source string) (Origin, error) {
	switch {
	case source == "":
		return Path{}, nil
	case strings.HasPrefix(source, registryPrefix):
		return Registry{IndexURL: strings.TrimPrefix(source, registryPrefix)}, nil
	case strings.HasPrefix(source, sparsePrefix):
		return Registry{IndexURL: strings.TrimPrefix(source, sparsePrefix), Sparse: true}, nil
	case strings.HasPrefix(source, gitPrefix):
		return parseGitOrigin(strings.TrimPrefix(source, gitPrefix))
	default:
		return nil, fmt.Errorf("unknown source kind %q", source)
	}
}

func parseGitOrigin(raw string) (Git, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Git{}, fmt.Errorf("invalid git url: %w", err)
	}
	if u.Scheme == "" || (u.Host == "" && u.Scheme != "file") {
		return Git{}, fmt.Errorf("invalid git url %q", raw)
	}

	g := Git{Commit: u.Fragment}
	q := u.Query()
	for _, kind := range []RefKind{RefRev, RefTag, RefBranch} {
		if v := q.Get(string(kind)); v != "" {
			g.Ref = GitRef{Kind: kind, Name: v}
			break
		}
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	g.URL = u.String()
	return g, nil
}
