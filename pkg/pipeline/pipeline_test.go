package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/observability"
	"github.com/matzehuels/flatcargo/pkg/source"
	"github.com/matzehuels/flatcargo/pkg/workspace"
)

const scenarioLock = `version = 3

[[package]]
name = "app"
version = "0.1.0"
dependencies = ["foo", "serde"]

[[package]]
name = "foo"
version = "0.2.0"
source = "git+https://example.com/foo#deadbeef"
dependencies = ["serde"]

[[package]]
name = "serde"
version = "1.0.200"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "abc123"
`

func TestConvert_Scenario(t *testing.T) {
	res, err := Convert(context.Background(), []byte(scenarioLock), Options{})
	require.NoError(t, err)

	assert.Equal(t, source.Directory{Package: lock.ID{Name: "app", Version: "0.1.0"}, Path: "."}, res.Root)

	entries := res.Sources.Entries()
	require.Len(t, entries, 2)

	archive, ok := entries[0].(source.Archive)
	require.True(t, ok, "archives sort first")
	assert.Equal(t, "https://static.crates.io/crates/serde/serde-1.0.200.crate", archive.URL)
	assert.Equal(t, "abc123", archive.SHA256)

	git, ok := entries[1].(source.Git)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/foo", git.URL)
	assert.Equal(t, "deadbeef", git.Commit)

	assert.Empty(t, res.Warnings)
	assert.Equal(t, Stats{
		PackageCount: 3,
		SourceCount:  2,
		Skipped:      1,
		ReadTime:     res.Stats.ReadTime,
		ClassifyTime: res.Stats.ClassifyTime,
	}, res.Stats)
}

func TestConvert_DebugLog(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	_, err := Convert(context.Background(), []byte(scenarioLock), Options{
		Classifier: source.Options{
			Registries: map[string]string{"https://my-registry.example/index": "https://my-registry.example/{crate}/{version}"},
		},
		Logger: logger,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "known registries")
	assert.Contains(t, out, "https://my-registry.example/index")
	assert.Contains(t, out, source.CratesIOIndex)
	assert.Contains(t, out, "root package")
	assert.Contains(t, out, "deps=2")
}

func TestConvert_MissingChecksum(t *testing.T) {
	content := `version = 3

[[package]]
name = "serde"
version = "1.0.200"
source = "registry+https://github.com/rust-lang/crates.io-index"
`
	res, err := Convert(context.Background(), []byte(content), Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, errors.ErrCodeMissingChecksum, errors.GetCode(err))
	assert.Equal(t, "serde 1.0.200", errors.GetPackage(err))
}

const monorepoLock = `version = 3

[[package]]
name = "app"
version = "0.1.0"
dependencies = ["crate-a", "crate-b"]

[[package]]
name = "crate-a"
version = "0.1.0"
source = "git+https://example.com/mono#deadbeefcafe"

[[package]]
name = "crate-b"
version = "0.1.0"
source = "git+https://example.com/mono#deadbeefcafe"
`

func TestConvert_MonorepoWithoutSubdirsFails(t *testing.T) {
	res, err := Convert(context.Background(), []byte(monorepoLock), Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, errors.ErrCodeUnclassifiableOrigin, errors.GetCode(err))
	assert.Equal(t, "crate-b 0.1.0", errors.GetPackage(err))
}

// subdirs is a fixed [source.SubdirResolver].
type subdirs map[string]string

func (s subdirs) Subdir(id lock.ID, _ lock.Git) (string, bool) {
	dir, ok := s[id.Name]
	return dir, ok
}

func TestConvert_MonorepoWithSubdirs(t *testing.T) {
	opts := Options{Classifier: source.Options{Subdirs: subdirs{"crate-a": "a", "crate-b": "b"}}}
	res, err := Convert(context.Background(), []byte(monorepoLock), opts)
	require.NoError(t, err)

	gits := res.Sources.Gits()
	require.Len(t, gits, 2)
	assert.Equal(t, "crate-a", gits[0].Package.Name)
	assert.Equal(t, "cargo/vendor/crate-a-0.1.0", gits[0].VendorDir)
	assert.Equal(t, "crate-b", gits[1].Package.Name)
	assert.Equal(t, "cargo/vendor/crate-b-0.1.0", gits[1].VendorDir)
	assert.Zero(t, res.Stats.Collapsed)
}

func TestConvert_DeterministicAcrossJobsAndInputOrder(t *testing.T) {
	reordered := `version = 3

[[package]]
name = "serde"
version = "1.0.200"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "abc123"

[[package]]
name = "foo"
version = "0.2.0"
source = "git+https://example.com/foo#deadbeef"
dependencies = ["serde"]

[[package]]
name = "app"
version = "0.1.0"
dependencies = ["serde", "foo"]
`
	want, err := Convert(context.Background(), []byte(scenarioLock), Options{Jobs: 1})
	require.NoError(t, err)

	for _, jobs := range []int{1, 2, 16} {
		for _, input := range []string{scenarioLock, reordered} {
			got, err := Convert(context.Background(), []byte(input), Options{Jobs: jobs})
			require.NoError(t, err)
			assert.Equal(t, want.Sources.Entries(), got.Sources.Entries())
			assert.Equal(t, want.Root, got.Root)
		}
	}
}

func TestConvert_LowestIndexErrorWins(t *testing.T) {
	content := `version = 3

[[package]]
name = "zeta"
version = "1.0.0"
source = "git+https://example.com/zeta"

[[package]]
name = "alpha"
version = "1.0.0"
source = "git+https://example.com/alpha"
`
	for range 10 {
		_, err := Convert(context.Background(), []byte(content), Options{Jobs: 4})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeUnclassifiableOrigin, errors.GetCode(err))
		assert.Equal(t, "alpha 1.0.0", errors.GetPackage(err))
	}
}

func TestConvert_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Convert(ctx, []byte(scenarioLock), Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeLocator map[string]workspace.Location

func (f fakeLocator) Locate(name string) (workspace.Location, bool) {
	loc, ok := f[name]
	return loc, ok
}

func TestConvert_Warnings(t *testing.T) {
	content := `version = 3

[[package]]
name = "app"
version = "0.1.0"
dependencies = ["inner", "outer", "lost", "openssl-sys"]

[[package]]
name = "inner"
version = "0.1.0"

[[package]]
name = "lost"
version = "0.1.0"

[[package]]
name = "openssl-sys"
version = "0.9.0"
source = "registry+https://github.com/rust-lang/crates.io-index"
checksum = "ff"

[[package]]
name = "outer"
version = "0.1.0"
`
	ws := fakeLocator{
		"app":   {Dir: "/src/app", Inside: true},
		"inner": {Dir: "/src/app/inner", Inside: true},
		"outer": {Dir: "/src/outer", Inside: false},
	}
	res, err := Convert(context.Background(), []byte(content), Options{
		Classifier: source.Options{Exclude: []string{"openssl-sys"}},
		Workspace:  ws,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sources.Len())

	var kinds []WarningKind
	var names []string
	for _, w := range res.Warnings {
		kinds = append(kinds, w.Kind)
		names = append(names, w.Package.Name)
	}
	assert.Equal(t, []string{"lost", "openssl-sys", "outer"}, names)
	assert.Equal(t, []WarningKind{WarnPathUnknown, WarnExcluded, WarnPathOutsideDir}, kinds)
	assert.Contains(t, res.Warnings[2].String(), "outer 0.1.0: ")
}

func TestConvert_RootPackage(t *testing.T) {
	workspaceLock := `version = 3

[[package]]
name = "cli"
version = "0.1.0"

[[package]]
name = "server"
version = "0.1.0"
`
	res, err := Convert(context.Background(), []byte(workspaceLock), Options{})
	require.NoError(t, err)
	assert.Equal(t, lock.ID{}, res.Root.Package, "ambiguous root stays anonymous")
	assert.Equal(t, ".", res.Root.Path)

	res, err = Convert(context.Background(), []byte(workspaceLock), Options{RootPackage: "server"})
	require.NoError(t, err)
	assert.Equal(t, "server", res.Root.Package.Name)

	_, err = Convert(context.Background(), []byte(workspaceLock), Options{RootPackage: "missing"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, Options{}.Validate())
	assert.True(t, errors.Is(Options{Jobs: -1}.Validate(), errors.ErrCodeInvalidInput))
	assert.True(t, errors.Is(Options{
		Classifier: source.Options{Exclude: []string{"../x"}},
	}.Validate(), errors.ErrCodeInvalidInput))

	o := Options{}.WithDefaults()
	assert.Positive(t, o.Jobs)
	assert.NotNil(t, o.Logger)
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lock.FileName)
	require.NoError(t, os.WriteFile(path, []byte(scenarioLock), 0o644))

	res, err := ConvertFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sources.Len())

	_, err = ConvertFile(context.Background(), filepath.Join(dir, "nope.lock"), Options{})
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
}

type recordingHooks struct {
	observability.NoopPipelineHooks

	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) record(e string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHooks) OnReadStart(context.Context, string) { h.record("read-start") }
func (h *recordingHooks) OnReadComplete(_ context.Context, _ string, n int, _ time.Duration, err error) {
	h.record("read-complete")
}
func (h *recordingHooks) OnClassifyStart(context.Context, int, int) { h.record("classify-start") }
func (h *recordingHooks) OnClassifyComplete(context.Context, int, time.Duration, error) {
	h.record("classify-complete")
}

func TestConvert_Hooks(t *testing.T) {
	h := &recordingHooks{}
	observability.SetPipelineHooks(h)
	t.Cleanup(observability.Reset)

	_, err := Convert(context.Background(), []byte(scenarioLock), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"read-start", "read-complete", "classify-start", "classify-complete"}, h.events)
}
