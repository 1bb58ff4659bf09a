package source

import (
	"strings"

	"github.com/matzehuels/flatcargo/pkg/errors"
)

const (
	// CratesIOIndex is the git index URL of crates.io.
	CratesIOIndex = "https://github.com/rust-lang/crates.io-index"

	// CratesIOSparseIndex is the sparse index URL of crates.io.
	CratesIOSparseIndex = "https://index.crates.io/"

	// CratesIOTemplate is the download template used for crates.io packages.
	CratesIOTemplate = "https://static.crates.io/crates/{crate}/{crate}-{version}.crate"
)

// Template markers understood in download templates. These are the markers
// cargo accepts in a registry's config.json "dl" field.
const (
	markerCrate       = "{crate}"
	markerVersion     = "{version}"
	markerPrefix      = "{prefix}"
	markerLowerPrefix = "{lowerprefix}"
	markerChecksum    = "{sha256-checksum}"
)

var markers = []string{markerCrate, markerVersion, markerPrefix, markerLowerPrefix, markerChecksum}

// DownloadURL expands a registry download template for one package.
// A template without any marker is treated as a base URL and gets
// "/{crate}/{version}/download" appended.
func DownloadURL(template, name, version, checksum string) string {
	if !hasMarker(template) {
		template = strings.TrimSuffix(template, "/") + "/" + markerCrate + "/" + markerVersion + "/download"
	}
	prefix := cratePrefix(name)
	return strings.NewReplacer(
		markerCrate, name,
		markerVersion, version,
		markerPrefix, prefix,
		markerLowerPrefix, strings.ToLower(prefix),
		markerChecksum, checksum,
	).Replace(template)
}

// ValidateTemplate checks that a download template expands to an http(s) URL.
func ValidateTemplate(template string) error {
	if err := errors.ValidateURL(DownloadURL(template, "x", "0.0.0", "0")); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid download template %q", template)
	}
	return nil
}

// IsCratesIO reports whether index is either crates.io index URL.
func IsCratesIO(index string) bool {
	n := normalizeIndexURL(index)
	return n == normalizeIndexURL(CratesIOIndex) || n == normalizeIndexURL(CratesIOSparseIndex)
}

func hasMarker(template string) bool {
	for _, m := range markers {
		if strings.Contains(template, m) {
			return true
		}
	}
	return false
}

// cratePrefix computes the index directory prefix for a crate name:
// "1", "2", "3/a" or "ab/cd".
func cratePrefix(name string) string {
	switch len(name) {
	case 0:
		return ""
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + name[:1]
	default:
		return name[:2] + "/" + name[2:4]
	}
}

// normalizeIndexURL makes index URLs comparable regardless of a source kind
// prefix or a trailing slash.
func normalizeIndexURL(u string) string {
	u = strings.TrimPrefix(u, "registry+")
	u = strings.TrimPrefix(u, "sparse+")
	return strings.TrimSuffix(u, "/")
}

func defaultRegistries() map[string]string {
	return map[string]string{
		normalizeIndexURL(CratesIOIndex):       CratesIOTemplate,
		normalizeIndexURL(CratesIOSparseIndex): CratesIOTemplate,
	}
}
