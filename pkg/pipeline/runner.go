package pipeline

import (
	"context"
	"maps"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/observability"
	"github.com/matzehuels/flatcargo/pkg/source"
)

// ConvertFile reads the lock file at path and converts it.
func ConvertFile(ctx context.Context, path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	return convert(ctx, path, data, opts)
}

// Convert parses a lock document and converts it.
func Convert(ctx context.Context, data []byte, opts Options) (*Result, error) {
	return convert(ctx, "", data, opts)
}

func convert(ctx context.Context, path string, data []byte, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	hooks := observability.Pipeline()

	start := time.Now()
	hooks.OnReadStart(ctx, path)
	g, err := lock.Parse(data)
	readTime := time.Since(start)
	count := 0
	if g != nil {
		count = g.Len()
	}
	hooks.OnReadComplete(ctx, path, count, readTime, err)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("read lock", "version", g.Version(), "packages", g.Len(), "edges", g.EdgeCount(), "duration", readTime)

	res, err := Run(ctx, g, opts)
	if err != nil {
		return nil, err
	}
	res.Stats.ReadTime = readTime
	return res, nil
}

// Run classifies and orders the packages of an already parsed graph.
func Run(ctx context.Context, g *lock.Graph, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	classifier, err := source.NewClassifier(opts.Classifier)
	if err != nil {
		return nil, err
	}
	logger.Debug("known registries", "indexes", slices.Sorted(maps.Keys(classifier.Registries())))

	root, err := findRoot(g, opts.RootPackage)
	if err != nil {
		return nil, err
	}
	if i, ok := g.Lookup(root.Package); ok {
		logger.Debug("root package", "package", root.Package, "deps", len(g.Dependencies(i)))
	}

	for _, e := range g.CycleEdges() {
		logger.Debug("ignoring dependency cycle edge",
			"from", g.Node(e[0]).ID, "to", g.Node(e[1]).ID)
	}

	hooks := observability.Pipeline()
	start := time.Now()
	hooks.OnClassifyStart(ctx, g.Len(), opts.Jobs)

	entries, err := classifyAll(ctx, g, classifier, opts.Jobs)
	if err != nil {
		hooks.OnClassifyComplete(ctx, 0, time.Since(start), err)
		return nil, err
	}

	set, err := source.NewSet(entries)
	classifyTime := time.Since(start)
	if err != nil {
		hooks.OnClassifyComplete(ctx, 0, classifyTime, err)
		return nil, err
	}
	hooks.OnClassifyComplete(ctx, set.Len(), classifyTime, nil)

	res := &Result{
		Root:     root,
		Sources:  set,
		Warnings: collectWarnings(g, classifier, opts.Workspace, root.Package),
		Graph:    g,
		Stats: Stats{
			PackageCount: g.Len(),
			SourceCount:  set.Len(),
			Collapsed:    len(entries) - set.Len(),
			Skipped:      g.Len() - len(entries),
			ClassifyTime: classifyTime,
		},
	}
	logger.Debug("classified packages",
		"sources", res.Stats.SourceCount,
		"collapsed", res.Stats.Collapsed,
		"skipped", res.Stats.Skipped,
		"duration", classifyTime)
	return res, nil
}

// classifyAll classifies every node with at most jobs workers. Each worker
// writes only its own slot; when several nodes fail the one with the lowest
// index is reported so that failures are as deterministic as successes.
func classifyAll(ctx context.Context, g *lock.Graph, c *source.Classifier, jobs int) ([]source.Entry, error) {
	nodes := g.Nodes()
	results := make([]source.Entry, len(nodes))
	errs := make([]error, len(nodes))

	var eg errgroup.Group
	eg.SetLimit(jobs)
	for i := range nodes {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = c.Classify(nodes[i])
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	entries := make([]source.Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// findRoot picks the root package. Without a name it uses the only local
// package nothing depends on; a workspace with several such members gets an
// anonymous root.
func findRoot(g *lock.Graph, name string) (source.Directory, error) {
	if name != "" {
		for _, n := range g.Nodes() {
			if _, ok := n.Origin.(lock.Path); ok && n.ID.Name == name {
				return source.Root(n.ID), nil
			}
		}
		return source.Directory{}, errors.New(errors.ErrCodeInvalidInput,
			"root package %q is not a local package in the lock", name)
	}

	var candidates []lock.ID
	for _, i := range g.Roots() {
		n := g.Node(i)
		if _, ok := n.Origin.(lock.Path); ok {
			candidates = append(candidates, n.ID)
		}
	}
	if len(candidates) == 1 {
		return source.Root(candidates[0]), nil
	}
	return source.Root(lock.ID{}), nil
}

func collectWarnings(g *lock.Graph, c *source.Classifier, ws Locator, root lock.ID) []Warning {
	var warnings []Warning
	for _, n := range g.Nodes() {
		if n.ID == root {
			continue
		}
		if c.Excluded(n.ID.Name) {
			warnings = append(warnings, Warning{
				Package: n.ID,
				Kind:    WarnExcluded,
				Message: "excluded by configuration; the build must provide it",
			})
			continue
		}
		if _, ok := n.Origin.(lock.Path); !ok || ws == nil {
			continue
		}
		loc, ok := ws.Locate(n.ID.Name)
		switch {
		case !ok:
			warnings = append(warnings, Warning{
				Package: n.ID,
				Kind:    WarnPathUnknown,
				Message: "local package not found in the project tree",
			})
		case !loc.Inside:
			warnings = append(warnings, Warning{
				Package: n.ID,
				Kind:    WarnPathOutsideDir,
				Message: "local package at " + loc.Dir + " is outside the project tree and will not be shipped",
			})
		}
	}
	return warnings
}
