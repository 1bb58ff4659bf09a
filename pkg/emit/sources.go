package emit

import (
	"fmt"
	"strings"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/source"
)

// Source type names understood by flatpak-builder.
const (
	TypeArchive = "archive"
	TypeGit     = "git"
	TypeDir     = "dir"
	TypeInline  = "inline"
	TypeShell   = "shell"
)

const (
	checksumFile = ".cargo-checksum.json"
	manifestFile = "Cargo.toml"

	// ConfigDir and ConfigFile place the generated cargo config at
	// $CARGO_HOME/config inside the build, with CARGO_HOME=cargo.
	ConfigDir  = "cargo"
	ConfigFile = "config"

	defaultStripComponents = 1
)

// Source is a single flatpak-builder source object. Unused fields are
// omitted from the output.
type Source struct {
	Type            string   `json:"type" yaml:"type"`
	ArchiveType     string   `json:"archive-type,omitempty" yaml:"archive-type,omitempty"`
	URL             string   `json:"url,omitempty" yaml:"url,omitempty"`
	SHA256          string   `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	StripComponents *int     `json:"strip-components,omitempty" yaml:"strip-components,omitempty"`
	Commit          string   `json:"commit,omitempty" yaml:"commit,omitempty"`
	Path            string   `json:"path,omitempty" yaml:"path,omitempty"`
	Contents        string   `json:"contents,omitempty" yaml:"contents,omitempty"`
	Commands        []string `json:"commands,omitempty" yaml:"commands,omitempty"`
	Dest            string   `json:"dest,omitempty" yaml:"dest,omitempty"`
	DestFilename    string   `json:"dest-filename,omitempty" yaml:"dest-filename,omitempty"`
}

// Options configures [Build].
type Options struct {
	// NoRoot omits the root directory source, for manifests that fetch the
	// application itself some other way.
	NoRoot bool
}

// Build turns the root directory and the ordered source set into the
// flatpak-builder source list. The root comes first, then one group per
// entry in set order, then the cargo config.
func Build(root source.Directory, set *source.Set, opts Options) ([]Source, error) {
	var out []Source
	if !opts.NoRoot {
		out = append(out, Source{Type: TypeDir, Path: root.Path})
	}

	cfg := newCargoConfig()
	checkouts := make(map[string]string) // dest -> url#commit

	for _, e := range set.Entries() {
		switch v := e.(type) {
		case source.Archive:
			out = append(out, archiveSources(v)...)
			cfg.addRegistry(v.Registry)
		case source.Git:
			rev := v.URL + "#" + v.Commit
			switch prev, seen := checkouts[v.Dest]; {
			case !seen:
				checkouts[v.Dest] = rev
				out = append(out, Source{Type: TypeGit, URL: v.URL, Commit: v.Commit, Dest: v.Dest})
			case prev != rev:
				return nil, errors.New(errors.ErrCodeInternal,
					"checkout %s is claimed by both %s and %s", v.Dest, prev, rev)
			}
			out = append(out, gitSources(v)...)
			cfg.addGit(v)
		default:
			return nil, errors.New(errors.ErrCodeInternal, "cannot emit source entry %T", e)
		}
	}

	config, err := cfg.encode()
	if err != nil {
		return nil, err
	}
	out = append(out, Source{
		Type:         TypeInline,
		Contents:     config,
		Dest:         ConfigDir,
		DestFilename: ConfigFile,
	})
	return out, nil
}

func archiveSources(a source.Archive) []Source {
	archive := Source{
		Type:        TypeArchive,
		ArchiveType: a.ArchiveType,
		URL:         a.URL,
		SHA256:      a.SHA256,
		Dest:        a.Dest,
	}
	if a.StripComponents != defaultStripComponents {
		n := a.StripComponents
		archive.StripComponents = &n
	}
	return []Source{
		archive,
		{
			Type:         TypeInline,
			Contents:     fmt.Sprintf(`{"package": %q, "files": {}}`, a.SHA256),
			Dest:         a.Dest,
			DestFilename: checksumFile,
		},
	}
}

// gitSources copies the package out of its checkout. A normalized manifest
// replaces the copied Cargo.toml, which may inherit from a workspace root
// that is not vendored.
func gitSources(g source.Git) []Source {
	out := []Source{{
		Type:     TypeShell,
		Commands: []string{"cp -r --reflink=auto " + shellQuote(g.PackageDir()) + " " + shellQuote(g.VendorDir)},
	}}
	if g.Manifest != "" {
		out = append(out, Source{
			Type:         TypeInline,
			Contents:     g.Manifest,
			Dest:         g.VendorDir,
			DestFilename: manifestFile,
		})
	}
	return append(out, Source{
		Type:         TypeInline,
		Contents:     `{"package": null, "files": {}}`,
		Dest:         g.VendorDir,
		DestFilename: checksumFile,
	})
}

// shellQuote quotes s for a POSIX shell. Inside single quotes nothing is
// expanded; an embedded quote is closed, escaped and reopened.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
