package source

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// VendorDir is where every dependency ends up inside the build root.
	VendorDir = "cargo/vendor"

	// GitCacheDir holds git checkouts before they are copied into VendorDir.
	GitCacheDir = "flatpak-cargo/git"

	// ShortCommitLen is the commit prefix length used in checkout directory names.
	ShortCommitLen = 7
)

// CanonicalGitURL normalizes a repository URL the way cargo does when it
// identifies git sources: query and fragment are dropped, as are a trailing
// slash and a ".git" suffix. GitHub paths are case-insensitive and are
// lowercased.
func CanonicalGitURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimPrefix(raw, "git+"))
	if err != nil {
		return "", fmt.Errorf("parse git url: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("git url %q has no scheme", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""

	p := strings.TrimSuffix(u.Path, "/")
	p = strings.TrimSuffix(p, ".git")
	if strings.EqualFold(u.Host, "github.com") {
		p = strings.ToLower(p)
	}
	u.Path = p
	u.RawPath = ""
	return u.String(), nil
}

// RepoName returns the last path element of a canonical repository URL.
func RepoName(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil || u.Path == "" {
		return "repo"
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return "repo"
	}
	return name
}

// IsCommitHash reports whether s is a hexadecimal object id of plausible
// length: abbreviated (7+), SHA-1 (40) or SHA-256 (64).
func IsCommitHash(s string) bool {
	if len(s) < ShortCommitLen || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// checkoutDir names the directory a repository is checked out into:
// REPO-URLHASH-SHORTCOMMIT. The URL hash keeps repositories that share a
// basename apart.
func checkoutDir(canonical, commit string) string {
	return fmt.Sprintf("%s/%s-%08x-%s", GitCacheDir, RepoName(canonical),
		uint32(xxhash.Sum64String(canonical)), commit[:ShortCommitLen])
}
