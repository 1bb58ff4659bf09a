package emit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/source"
)

var (
	serde = source.Archive{
		Package:         lock.ID{Name: "serde", Version: "1.0.200"},
		URL:             "https://static.crates.io/crates/serde/serde-1.0.200.crate",
		SHA256:          "abc123",
		ArchiveType:     "tar-gzip",
		StripComponents: 1,
		Dest:            "cargo/vendor/serde-1.0.200",
		Registry:        lock.Registry{IndexURL: source.CratesIOIndex},
	}
	foo = source.Git{
		Package:   lock.ID{Name: "foo", Version: "0.2.0"},
		URL:       "https://example.com/foo",
		Commit:    "deadbeef",
		Dest:      "flatpak-cargo/git/foo-deadbee",
		VendorDir: "cargo/vendor/foo-0.2.0",
		Declared:  lock.GitRef{Kind: lock.RefBranch, Name: "main"},
	}
)

func newSet(t *testing.T, entries ...source.Entry) *source.Set {
	t.Helper()
	set, err := source.NewSet(entries)
	require.NoError(t, err)
	return set
}

func decodeConfig(t *testing.T, s Source) cargoConfig {
	t.Helper()
	require.Equal(t, TypeInline, s.Type)
	require.Equal(t, ConfigDir, s.Dest)
	require.Equal(t, ConfigFile, s.DestFilename)

	var cfg cargoConfig
	_, err := toml.Decode(s.Contents, &cfg)
	require.NoError(t, err)
	return cfg
}

func TestBuild(t *testing.T) {
	root := source.Root(lock.ID{Name: "app", Version: "0.1.0"})
	sources, err := Build(root, newSet(t, foo, serde), Options{})
	require.NoError(t, err)
	require.Len(t, sources, 7)

	assert.Equal(t, Source{Type: TypeDir, Path: "."}, sources[0])
	assert.Equal(t, Source{
		Type:        TypeArchive,
		ArchiveType: "tar-gzip",
		URL:         serde.URL,
		SHA256:      "abc123",
		Dest:        "cargo/vendor/serde-1.0.200",
	}, sources[1])
	assert.Equal(t, Source{
		Type:         TypeInline,
		Contents:     `{"package": "abc123", "files": {}}`,
		Dest:         "cargo/vendor/serde-1.0.200",
		DestFilename: ".cargo-checksum.json",
	}, sources[2])
	assert.Equal(t, Source{
		Type:   TypeGit,
		URL:    "https://example.com/foo",
		Commit: "deadbeef",
		Dest:   "flatpak-cargo/git/foo-deadbee",
	}, sources[3])
	assert.Equal(t, Source{
		Type:     TypeShell,
		Commands: []string{`cp -r --reflink=auto 'flatpak-cargo/git/foo-deadbee' 'cargo/vendor/foo-0.2.0'`},
	}, sources[4])
	assert.Equal(t, `{"package": null, "files": {}}`, sources[5].Contents)
	assert.Equal(t, "cargo/vendor/foo-0.2.0", sources[5].Dest)

	cfg := decodeConfig(t, sources[6])
	assert.Equal(t, map[string]replacement{
		"crates-io":        {ReplaceWith: "vendored-sources"},
		"vendored-sources": {Directory: "cargo/vendor"},
		"https://example.com/foo?branch=main": {
			Git:         "https://example.com/foo",
			Branch:      "main",
			ReplaceWith: "vendored-sources",
		},
	}, cfg.Source)
}

func TestBuild_NoRoot(t *testing.T) {
	sources, err := Build(source.Root(lock.ID{}), newSet(t, serde), Options{NoRoot: true})
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, TypeArchive, sources[0].Type)
}

func TestBuild_EmptySet(t *testing.T) {
	sources, err := Build(source.Root(lock.ID{}), newSet(t), Options{})
	require.NoError(t, err)
	require.Len(t, sources, 2)

	cfg := decodeConfig(t, sources[1])
	assert.Equal(t, map[string]replacement{
		"vendored-sources": {Directory: "cargo/vendor"},
	}, cfg.Source)
}

func TestBuild_SharedCheckout(t *testing.T) {
	core := foo
	core.Package = lock.ID{Name: "foo-core", Version: "0.2.0"}
	core.Subdir = "core"
	core.VendorDir = "cargo/vendor/foo-core-0.2.0"
	cli := foo
	cli.Package = lock.ID{Name: "foo-cli", Version: "0.2.0"}
	cli.Subdir = "cli"
	cli.VendorDir = "cargo/vendor/foo-cli-0.2.0"

	sources, err := Build(source.Root(lock.ID{}), newSet(t, core, cli), Options{NoRoot: true})
	require.NoError(t, err)

	var types []string
	for _, s := range sources {
		types = append(types, s.Type)
	}
	assert.Equal(t, []string{TypeGit, TypeShell, TypeInline, TypeShell, TypeInline, TypeInline}, types)
	assert.Equal(t,
		`cp -r --reflink=auto 'flatpak-cargo/git/foo-deadbee/cli' 'cargo/vendor/foo-cli-0.2.0'`,
		sources[1].Commands[0])
}

func TestBuild_AlternativeRegistry(t *testing.T) {
	internal := source.Archive{
		Package:         lock.ID{Name: "internal", Version: "0.3.0"},
		URL:             "https://registry.example.com/dl/internal/0.3.0",
		SHA256:          "ff",
		ArchiveType:     "tar-gzip",
		StripComponents: 1,
		Dest:            "cargo/vendor/internal-0.3.0",
		Registry:        lock.Registry{IndexURL: "https://registry.example.com/index/", Sparse: true},
	}
	sources, err := Build(source.Root(lock.ID{}), newSet(t, internal), Options{NoRoot: true})
	require.NoError(t, err)

	cfg := decodeConfig(t, sources[len(sources)-1])
	assert.Equal(t, replacement{
		Registry:    "sparse+https://registry.example.com/index/",
		ReplaceWith: "vendored-sources",
	}, cfg.Source["https://registry.example.com/index/"])
	assert.NotContains(t, cfg.Source, "crates-io")
}

func TestBuild_StripComponents(t *testing.T) {
	a := serde
	a.StripComponents = 0
	sources, err := Build(source.Root(lock.ID{}), newSet(t, a), Options{NoRoot: true})
	require.NoError(t, err)
	require.NotNil(t, sources[0].StripComponents)
	assert.Equal(t, 0, *sources[0].StripComponents)
}

func TestMarshal_JSON(t *testing.T) {
	sources, err := Build(source.Root(lock.ID{}), newSet(t, serde, foo), Options{})
	require.NoError(t, err)

	data, err := Marshal(sources, FormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n  {\n    \"type\": \"dir\""))
	assert.Contains(t, string(data), `"archive-type": "tar-gzip"`)
	assert.Contains(t, string(data), `"dest-filename": ".cargo-checksum.json"`)
	assert.NotContains(t, string(data), "strip-components")

	var decoded []Source
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sources, decoded)

	again, err := Marshal(sources, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.Equal(t, Digest(data), Digest(again))
}

func TestMarshal_YAML(t *testing.T) {
	sources, err := Build(source.Root(lock.ID{}), newSet(t, serde, foo), Options{})
	require.NoError(t, err)

	data, err := Marshal(sources, FormatYAML)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "- type: dir\n"))

	var decoded []Source
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, sources, decoded)
}

func TestMarshal_Empty(t *testing.T) {
	data, err := Marshal(nil, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	_, err = Marshal(nil, Format("xml"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"toml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForPath("cargo-sources.json"))
	assert.Equal(t, FormatYAML, FormatForPath("cargo-sources.yml"))
	assert.Equal(t, FormatYAML, FormatForPath("out/Sources.YAML"))
	assert.Equal(t, FormatJSON, FormatForPath("-"))
}

func TestUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultOutput)

	same, err := Unchanged(path, []byte("[]\n"))
	require.NoError(t, err)
	assert.False(t, same, "missing file counts as changed")

	require.NoError(t, os.WriteFile(path, []byte("[]\n"), 0o644))
	same, err = Unchanged(path, []byte("[]\n"))
	require.NoError(t, err)
	assert.True(t, same)

	same, err = Unchanged(path, []byte("[{}]\n"))
	require.NoError(t, err)
	assert.False(t, same)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cargo/vendor/foo-0.2.0", `'cargo/vendor/foo-0.2.0'`},
		{"flatpak-cargo/git/mono-deadbee/x$HOME", `'flatpak-cargo/git/mono-deadbee/x$HOME'`},
		{"$(touch pwned)`id`", "'$(touch pwned)`id`'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shellQuote(tt.in), "shellQuote(%q)", tt.in)
	}
}

func TestBuild_GitSubdirIsNotExpanded(t *testing.T) {
	pkg := foo
	pkg.Subdir = "crates/$HOME"

	sources, err := Build(source.Directory{}, newSet(t, pkg), Options{NoRoot: true})
	require.NoError(t, err)

	var shell *Source
	for i := range sources {
		if sources[i].Type == TypeShell {
			shell = &sources[i]
		}
	}
	require.NotNil(t, shell)
	assert.Equal(t, []string{
		`cp -r --reflink=auto 'flatpak-cargo/git/foo-deadbee/crates/$HOME' 'cargo/vendor/foo-0.2.0'`,
	}, shell.Commands)
}

func TestBuild_CheckoutClaimedTwice(t *testing.T) {
	fork := foo
	fork.Package = lock.ID{Name: "bar", Version: "0.1.0"}
	fork.URL = "https://example.org/fork/foo"
	fork.VendorDir = "cargo/vendor/bar-0.1.0"

	_, err := Build(source.Directory{}, newSet(t, foo, fork), Options{NoRoot: true})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.GetCode(err))
	assert.Contains(t, err.Error(), "flatpak-cargo/git/foo-deadbee")
}

func TestBuild_GitManifest(t *testing.T) {
	pkg := foo
	pkg.Manifest = "[package]\nname = \"foo\"\nversion = \"0.2.0\"\n"

	sources, err := Build(source.Directory{}, newSet(t, pkg), Options{NoRoot: true})
	require.NoError(t, err)
	require.Len(t, sources, 5)

	assert.Equal(t, TypeGit, sources[0].Type)
	assert.Equal(t, TypeShell, sources[1].Type)
	assert.Equal(t, Source{
		Type:         TypeInline,
		Contents:     pkg.Manifest,
		Dest:         "cargo/vendor/foo-0.2.0",
		DestFilename: "Cargo.toml",
	}, sources[2])
	assert.Equal(t, checksumFile, sources[3].DestFilename)
	assert.Equal(t, ConfigFile, sources[4].DestFilename)
	require.NoError(t, Validate(sources))
}
