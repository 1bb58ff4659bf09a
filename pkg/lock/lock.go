package lock

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/flatcargo/pkg/errors"
)

// Version is a Cargo.lock format version.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
	V4 Version = 4

	MinVersion = V1
	MaxVersion = V4
)

// FileName is the conventional lock file name.
const FileName = "Cargo.lock"

const (
	checksumKeyPrefix = "checksum "
	noChecksum        = "<none>"
)

type document struct {
	Version  *int              `toml:"version"`
	Packages []rawPackage      `toml:"package"`
	Metadata map[string]string `toml:"metadata"`
}

type rawPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Dependencies []string `toml:"dependencies"`
}

// ReadFile reads and parses the lock file at path.
func ReadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	return Parse(data)
}

// Read parses a lock document from r.
func Read(r io.Reader) (*Graph, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read lock")
	}
	return Parse(buf.Bytes())
}

// Parse decodes a lock document into a [Graph].
//
// It fails with MALFORMED_LOCK for invalid TOML or schema violations,
// UNSUPPORTED_LOCK_VERSION for unknown formats, and MISSING_CHECKSUM for
// registry packages without integrity data.
func Parse(data []byte) (*Graph, error) {
	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLock, err, "decode lock")
	}

	version, err := detectVersion(doc)
	if err != nil {
		return nil, err
	}

	pkgs, err := mergePackages(doc, version)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		version: version,
		nodes:   make([]Node, len(pkgs)),
		index:   make(map[ID]int, len(pkgs)),
	}
	for i, p := range pkgs {
		g.nodes[i] = Node{ID: p.id, Origin: p.origin, Checksum: p.checksum}
		g.index[p.id] = i
	}

	r := newDepResolver(pkgs)
	for i, p := range pkgs {
		deps := make([]int, 0, len(p.deps))
		for _, spec := range p.deps {
			d, err := r.resolve(spec)
			if err != nil {
				return nil, errors.WrapPackage(errors.ErrCodeMalformedLock, p.id.String(), err, "dependency %q", spec)
			}
			deps = append(deps, d)
		}
		slices.Sort(deps)
		g.nodes[i].Deps = slices.Compact(deps)
	}
	return g, nil
}

func detectVersion(doc document) (Version, error) {
	if doc.Version != nil {
		v := Version(*doc.Version)
		if v < MinVersion || v > MaxVersion {
			return 0, errors.New(errors.ErrCodeUnsupportedLockVersion,
				"lock version %d is not supported (supported: %d-%d)", v, MinVersion, MaxVersion)
		}
		return v, nil
	}
	for key := range doc.Metadata {
		if strings.HasPrefix(key, checksumKeyPrefix) {
			return V1, nil
		}
	}
	return V2, nil
}

// pkg is a validated, merged [[package]] entry before edges are resolved.
type pkg struct {
	id       ID
	source   string
	origin   Origin
	checksum string
	deps     []string
}

// mergePackages validates every entry and folds duplicates that differ only
// in their dependency lists (platform-conditional entries) into one.
func mergePackages(doc document, version Version) ([]*pkg, error) {
	byID := make(map[ID]*pkg, len(doc.Packages))
	for _, raw := range doc.Packages {
		p, err := newPkg(raw, doc.Metadata, version)
		if err != nil {
			return nil, err
		}
		existing, ok := byID[p.id]
		if !ok {
			byID[p.id] = p
			continue
		}
		if existing.source != p.source {
			return nil, errors.ForPackage(errors.ErrCodeMalformedLock, p.id.String(),
				"conflicting sources %q and %q", existing.source, p.source)
		}
		if existing.checksum != p.checksum {
			return nil, errors.ForPackage(errors.ErrCodeMalformedLock, p.id.String(),
				"conflicting checksums %q and %q", existing.checksum, p.checksum)
		}
		existing.deps = append(existing.deps, p.deps...)
	}

	pkgs := make([]*pkg, 0, len(byID))
	for _, p := range byID {
		pkgs = append(pkgs, p)
	}
	slices.SortFunc(pkgs, func(a, b *pkg) int { return a.id.Compare(b.id) })
	return pkgs, nil
}

func newPkg(raw rawPackage, metadata map[string]string, version Version) (*pkg, error) {
	id := ID{Name: raw.Name, Version: raw.Version}
	if err := errors.ValidateCratesPackageName(raw.Name); err != nil {
		return nil, errors.WrapPackage(errors.ErrCodeMalformedLock, id.String(), err, "invalid package name")
	}
	if err := errors.ValidateVersion(raw.Version); err != nil {
		return nil, errors.WrapPackage(errors.ErrCodeMalformedLock, id.String(), err, "invalid package version")
	}

	origin, err := ParseOrigin(raw.Source)
	if err != nil {
		return nil, errors.WrapPackage(errors.ErrCodeMalformedLock, id.String(), err, "invalid source")
	}

	checksum := raw.Checksum
	if checksum == "" && version == V1 {
		key := fmt.Sprintf("%s%s %s (%s)", checksumKeyPrefix, raw.Name, raw.Version, raw.Source)
		if v := metadata[key]; v != noChecksum {
			checksum = v
		}
	}

	if _, ok := origin.(Registry); ok && checksum == "" {
		return nil, errors.ForPackage(errors.ErrCodeMissingChecksum, id.String(),
			"registry package %s has no checksum", origin)
	}

	return &pkg{
		id:       id,
		source:   raw.Source,
		origin:   origin,
		checksum: checksum,
		deps:     raw.Dependencies,
	}, nil
}

// depResolver matches dependency strings ("name", "name version" or
// "name version (source)") against the package set.
type depResolver struct {
	byName map[string][]int
	pkgs   []*pkg
}

func newDepResolver(pkgs []*pkg) *depResolver {
	r := &depResolver{byName: make(map[string][]int), pkgs: pkgs}
	for i, p := range pkgs {
		r.byName[p.id.Name] = append(r.byName[p.id.Name], i)
	}
	return r
}

func (r *depResolver) resolve(spec string) (int, error) {
	name, version, source, err := splitDependency(spec)
	if err != nil {
		return 0, err
	}

	var matches []int
	for _, i := range r.byName[name] {
		p := r.pkgs[i]
		if version != "" && p.id.Version != version {
			continue
		}
		if source != "" && p.source != source {
			continue
		}
		matches = append(matches, i)
	}

	switch len(matches) {
	case 0:
		return 0, fmt.Errorf("no package matches %q", spec)
	case 1:
		return matches[0], nil
	default:
		return 0, fmt.Errorf("%d packages match %q", len(matches), spec)
	}
}

func splitDependency(spec string) (name, version, source string, err error) {
	rest := strings.TrimSpace(spec)
	if open := strings.IndexByte(rest, '('); open >= 0 {
		if !strings.HasSuffix(rest, ")") {
			return "", "", "", fmt.Errorf("unterminated source in %s", strconv.Quote(spec))
		}
		source = rest[open+1 : len(rest)-1]
		rest = strings.TrimSpace(rest[:open])
	}

	fields := strings.Fields(rest)
	switch len(fields) {
	case 1:
		name = fields[0]
	case 2:
		name, version = fields[0], fields[1]
	default:
		return "", "", "", fmt.Errorf("malformed dependency %s", strconv.Quote(spec))
	}
	if source != "" && version == "" {
		return "", "", "", fmt.Errorf("source without version in %s", strconv.Quote(spec))
	}
	return name, version, source, nil
}
