package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flatcargo/pkg/errors"
	"github.com/matzehuels/flatcargo/pkg/lock"
	"github.com/matzehuels/flatcargo/pkg/render"
)

// graphOpts holds the command-line flags for the graph command.
type graphOpts struct {
	lock     string
	output   string
	exclude  []string
	svg      bool
	detailed bool
}

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	opts := graphOpts{output: stdoutPath}

	cmd := &cobra.Command{
		Use:   "graph [dir]",
		Short: "Render the locked dependency graph",
		Long: `Render the locked dependency graph as Graphviz DOT or SVG.

Registry packages are drawn white, git packages blue and local packages
yellow. Edges that close a cycle (allowed through dev-dependencies) are
dashed, as are packages named by --exclude.

Examples:
  flatcargo graph | dot -Tpng > deps.png
  flatcargo graph --svg -o deps.svg
  flatcargo graph --detailed --exclude app-tests`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return c.runGraph(cmd.Context(), dir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.lock, "lock", "", "lock file (default DIR/Cargo.lock)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, `output file, "-" for stdout`)
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "package names to mark as excluded")
	cmd.Flags().BoolVar(&opts.svg, "svg", false, "render SVG instead of DOT")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include origin and checksum in labels")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, dir string, opts graphOpts) error {
	logger := loggerFromContext(ctx)

	lockPath := opts.lock
	if lockPath == "" {
		lockPath = filepath.Join(dir, lock.FileName)
	}
	if strings.EqualFold(filepath.Ext(opts.output), ".svg") {
		opts.svg = true
	}

	g, err := lock.ReadFile(lockPath)
	if err != nil {
		return err
	}
	logger.Debug("lock read", "packages", g.Len(), "edges", g.EdgeCount(), "version", int(g.Version()))

	dot := render.ToDOT(g, render.Options{Detailed: opts.detailed, Excluded: opts.exclude})
	data := []byte(dot)

	if opts.svg {
		spin := newSpinner(ctx, c.stderr, "Rendering SVG...")
		spin.Start()
		data, err = render.RenderSVG(ctx, dot)
		if err != nil {
			spin.StopWithError("SVG rendering failed")
			return errors.Wrap(errors.ErrCodeInternal, err, "render svg")
		}
		spin.StopWithSuccess("Rendered SVG")
	}

	if opts.output == stdoutPath {
		if _, err := c.stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", opts.output)
	}
	printSuccess(c.stderr, "Rendered %d packages", g.Len())
	printFile(c.stderr, opts.output)
	return nil
}
