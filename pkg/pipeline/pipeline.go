// Package pipeline converts a Cargo.lock into an offline build source set.
//
// The conversion runs three stages and either completes or returns an
// error; there is no partial result:
//
//  1. Read: parse the lock into an immutable package graph
//  2. Classify: map every package to zero or one source entry
//  3. Order: deduplicate the entries and sort them deterministically
//
// Classification of independent packages fans out over a bounded worker
// pool. The order stage does not depend on completion order, so the result
// is the same for any Jobs setting.
//
// # Usage
//
//	res, err := pipeline.ConvertFile(ctx, "Cargo.lock", pipeline.Options{
//	    Classifier: source.Options{Exclude: []string{"openssl-sys"}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range res.Sources.Entries() {
//	    fmt.Println(e.Key())
//	}
package pipeline

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/source"
	"github.com/matzehuels/flatcargo/pkg/workspace"
)

// Locator reports where local packages live. [workspace.Workspace]
// implements it.
type Locator interface {
	Locate(name string) (workspace.Location, bool)
}

// Options configures a conversion.
type Options struct {
	// Classifier configures registry templates, exclusions and git
	// subdirectory lookup.
	Classifier source.Options

	// Jobs bounds concurrent classification. Zero means GOMAXPROCS.
	Jobs int

	// RootPackage names the package whose directory becomes the root
	// directory source. Empty means the single local package nothing else
	// depends on, if there is exactly one.
	RootPackage string

	// Workspace locates local packages for path warnings. Nil disables
	// them.
	Workspace Locator

	Logger *log.Logger
}

// WithDefaults returns a copy of o with zero fields filled in.
func (o Options) WithDefaults() Options {
	if o.Jobs == 0 {
		o.Jobs = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return o
}

// Validate checks option values that defaults cannot repair.
func (o Options) Validate() error {
	if o.Jobs < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "jobs must not be negative, got %d", o.Jobs)
	}
	for _, name := range o.Classifier.Exclude {
		if err := errors.ValidateCratesPackageName(name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "exclude %q", name)
		}
	}
	return nil
}

// Result is the output of a successful conversion.
type Result struct {
	// Root is the directory source for the root package. It is not part of
	// Sources and is emitted first.
	Root source.Directory

	// Sources is the ordered, deduplicated source set.
	Sources *source.Set

	// Warnings lists packages that were skipped but may be needed offline.
	Warnings []Warning

	// Graph is the parsed lock.
	Graph *lock.Graph

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains conversion statistics.
type Stats struct {
	PackageCount int
	SourceCount  int
	Collapsed    int // Entries dropped by deduplication
	Skipped      int // Local and excluded packages
	ReadTime     time.Duration
	ClassifyTime time.Duration
}

// WarningKind distinguishes why a package produced a warning.
type WarningKind string

const (
	WarnExcluded       WarningKind = "excluded"
	WarnPathUnknown    WarningKind = "path-unknown"
	WarnPathOutsideDir WarningKind = "path-outside"
)

// Warning reports a package that is left out of the source set and may
// therefore be missing from an offline build.
type Warning struct {
	Package lock.ID
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Package, w.Message)
}
