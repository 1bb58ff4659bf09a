package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flatcargo/pkg/emit"
	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/observability"
	"github.com/matzehuels/flatcargo/pkg/pipeline"
	"github.com/matzehuels/flatcargo/pkg/source"
	"github.com/matzehuels/flatcargo/pkg/workspace"
)

// generateOpts holds the command-line flags for the generate command.
type generateOpts struct {
	lock        string   // lock file path (default: DIR/Cargo.lock)
	manifest    string   // root manifest path (default: DIR/Cargo.toml)
	output      string   // output file relative to DIR, "-" for stdout
	format      string   // json or yaml; inferred from output when empty
	registries  []string // INDEX=TEMPLATE download template overrides
	exclude     []string // package names left out of the sources
	rootPackage string   // root package name override
	cargoHome   string   // where to look for git checkouts
	jobs        int      // classification workers (0: GOMAXPROCS)
	noRoot      bool     // omit the root dir source
	check       bool     // fail instead of writing when output is stale
}

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	opts := generateOpts{output: emit.DefaultOutput}

	cmd := &cobra.Command{
		Use:   "generate [dir]",
		Short: "Write flatpak-builder sources for a cargo project",
		Long: `Write flatpak-builder sources for a cargo project.

Reads DIR/Cargo.lock (DIR defaults to the current directory) and writes the
sources needed to build the project offline. Registry crates are verified by
the checksums recorded in the lock; git dependencies are pinned to the locked
commit, never to a branch or tag.

Git packages that live in a subdirectory of their repository are located
through cargo's checkout cache ($CARGO_HOME/git/checkouts), so run
'cargo fetch' first if the cache is cold.

Examples:
  flatcargo generate                          # ./Cargo.lock -> ./cargo-sources.json
  flatcargo generate ../app                   # ../app/Cargo.lock -> ../app/cargo-sources.json
  flatcargo generate ../app -o -              # print to stdout
  flatcargo generate -o cargo-sources.yaml    # YAML output
  flatcargo generate --check                  # fail if cargo-sources.json is stale`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return c.runGenerate(cmd.Context(), dir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.lock, "lock", "", "lock file (default DIR/Cargo.lock)")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "root Cargo.toml (default DIR/Cargo.toml)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, `output file, relative to DIR unless absolute; "-" for stdout`)
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: json, yaml (default from output extension)")
	cmd.Flags().StringArrayVar(&opts.registries, "registry", nil, "download template for an alternative registry, as INDEX=TEMPLATE (repeatable)")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "package names to leave out (comma-separated or repeated)")
	cmd.Flags().StringVar(&opts.rootPackage, "root-package", "", "root package name (default from Cargo.toml)")
	cmd.Flags().StringVar(&opts.cargoHome, "cargo-home", "", "cargo home for git checkout lookup (default $CARGO_HOME or ~/.cargo)")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "parallel classification workers (default GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.noRoot, "no-root", false, "do not emit the project directory as the first source")
	cmd.Flags().BoolVar(&opts.check, "check", false, "exit with an error if the output file is out of date instead of writing it")

	return cmd
}

func (c *CLI) runGenerate(ctx context.Context, dir string, opts generateOpts) error {
	logger := loggerFromContext(ctx)

	lockPath := opts.lock
	if lockPath == "" {
		lockPath = filepath.Join(dir, lock.FileName)
	}
	manifestPath := opts.manifest
	if manifestPath == "" {
		manifestPath = filepath.Join(dir, workspace.ManifestName)
	}
	// The sources file sits next to the lock it was generated from.
	if opts.output != stdoutPath && !filepath.IsAbs(opts.output) {
		opts.output = filepath.Join(dir, opts.output)
	}

	format, err := outputFormat(opts.format, opts.output)
	if err != nil {
		return err
	}
	if opts.check && opts.output == stdoutPath {
		return errors.New(errors.ErrCodeInvalidInput, "--check needs an output file")
	}
	registries, err := parseRegistries(opts.registries)
	if err != nil {
		return err
	}

	ws, err := loadWorkspace(manifestPath)
	if err != nil {
		return err
	}

	checkouts := workspace.NewCheckoutResolver(opts.cargoHome)
	popts := pipeline.Options{
		Classifier: source.Options{
			Registries: registries,
			Exclude:    opts.exclude,
			Subdirs:    checkouts,
			Manifests:  checkouts,
		},
		Jobs:        opts.jobs,
		RootPackage: opts.rootPackage,
		Logger:      logger,
	}
	if ws != nil {
		popts.Workspace = ws
		if popts.RootPackage == "" {
			popts.RootPackage = ws.RootPackage
		}
	} else {
		logger.Warn("no Cargo.toml found; local package checks disabled", "path", manifestPath)
	}

	prog := newProgress(logger)
	res, err := pipeline.ConvertFile(ctx, lockPath, popts)
	if err != nil {
		return err
	}
	prog.done("Converted lock",
		"packages", res.Stats.PackageCount,
		"sources", res.Stats.SourceCount)

	sources, err := emit.Build(res.Root, res.Sources, emit.Options{NoRoot: opts.noRoot})
	if err != nil {
		return err
	}
	if err := emit.Validate(sources); err != nil {
		return err
	}
	data, err := emit.Marshal(sources, format)
	if err != nil {
		return err
	}

	if err := c.writeOutput(ctx, opts, format, data); err != nil {
		return err
	}
	c.printGenerateSummary(res, opts.output, len(sources), emit.Digest(data))
	return nil
}

func (c *CLI) writeOutput(ctx context.Context, opts generateOpts, format emit.Format, data []byte) error {
	hooks := observability.Output()

	if opts.output == stdoutPath {
		if _, err := c.stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		hooks.OnWrite(ctx, string(format), len(data))
		return nil
	}

	if opts.check {
		same, err := emit.Unchanged(opts.output, data)
		if err != nil {
			return err
		}
		if !same {
			return errors.New(errors.ErrCodeInvalidInput,
				"%s is out of date (want digest %s); rerun without --check", opts.output, emit.Digest(data))
		}
		hooks.OnUnchanged(ctx, opts.output)
		return nil
	}

	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", opts.output)
	}
	hooks.OnWrite(ctx, string(format), len(data))
	return nil
}

func (c *CLI) printGenerateSummary(res *pipeline.Result, output string, sourceCount int, digest string) {
	w := c.stderr
	printSuccess(w, "Generated %d flatpak sources", sourceCount)
	printStats(w,
		stat{n: res.Stats.PackageCount, label: "packages", always: true},
		stat{n: len(res.Sources.Archives()), label: "crates"},
		stat{n: len(res.Sources.Gits()), label: "git"},
		stat{n: res.Stats.Collapsed, label: "collapsed"},
		stat{n: res.Stats.Skipped, label: "local/excluded"},
	)
	if output != stdoutPath {
		printFile(w, output)
	}
	printKeyValue(w, "digest", digest)
	for _, warn := range res.Warnings {
		printWarning(w, "%s", warn)
	}
}

// outputFormat resolves the --format flag, falling back to the output
// file extension.
func outputFormat(flag, output string) (emit.Format, error) {
	if flag != "" {
		return emit.ParseFormat(flag)
	}
	return emit.FormatForPath(output), nil
}

// parseRegistries parses repeated INDEX=TEMPLATE flags. The index may carry
// its registry+ or sparse+ prefix.
func parseRegistries(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(specs))
	for _, spec := range specs {
		index, tmpl, ok := strings.Cut(spec, "=")
		index, tmpl = strings.TrimSpace(index), strings.TrimSpace(tmpl)
		if !ok || index == "" || tmpl == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid --registry %q (want INDEX=TEMPLATE)", spec)
		}
		out[index] = tmpl
	}
	return out, nil
}

// loadWorkspace reads the root manifest. A missing manifest is not an
// error: the lock alone is enough to generate sources.
func loadWorkspace(manifestPath string) (*workspace.Workspace, error) {
	if filepath.Base(manifestPath) != workspace.ManifestName {
		return nil, errors.New(errors.ErrCodeInvalidPath, "manifest must be named %s: %s", workspace.ManifestName, manifestPath)
	}
	ws, err := workspace.Load(filepath.Dir(manifestPath))
	if errors.Is(err, errors.ErrCodeFileNotFound) {
		return nil, nil
	}
	return ws, err
}
