package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/flatcargo/pkg/lock"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds the origin and checksum to node labels.
	Detailed bool

	// Excluded package names are drawn greyed out.
	Excluded []string
}

var originFill = map[string]string{
	"registry": "white",
	"git":      "lightblue",
	"path":     "lightyellow",
}

// ToDOT converts a lock graph to Graphviz DOT. Output is deterministic:
// nodes appear in graph index order and edges in dependency order.
func ToDOT(g *lock.Graph, opts Options) string {
	excluded := make(map[string]bool, len(opts.Excluded))
	for _, name := range opts.Excluded {
		excluded[name] = true
	}
	cycle := make(map[[2]int]bool)
	for _, e := range g.CycleEdges() {
		cycle[e] = true
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	// Dependencies are declared before their dependents.
	for _, i := range g.Order() {
		n := g.Node(i)
		attrs := fmtAttrs(n, fmtLabel(n, opts.Detailed), excluded[n.ID.Name])
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID.String(), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for i := range g.Len() {
		from := g.Node(i).ID.String()
		for _, d := range g.Dependencies(i) {
			to := g.Node(d).ID.String()
			if cycle[[2]int{i, d}] {
				fmt.Fprintf(&buf, "  %q -> %q [style=dashed];\n", from, to)
				continue
			}
			fmt.Fprintf(&buf, "  %q -> %q;\n", from, to)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func originKind(o lock.Origin) string {
	switch o.(type) {
	case lock.Registry:
		return "registry"
	case lock.Git:
		return "git"
	default:
		return "path"
	}
}

func fmtLabel(n lock.Node, detailed bool) string {
	label := n.ID.Name + "\n" + n.ID.Version
	if !detailed {
		return label
	}
	if s := n.Origin.String(); s != "" {
		label += "\n" + s
	}
	if n.Checksum != "" {
		label += "\nsha256: " + shorten(n.Checksum, 12)
	}
	return label
}

func fmtAttrs(n lock.Node, label string, excluded bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if excluded {
		return append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey", "fontcolor=grey40")
	}
	return append(attrs, "fillcolor="+originFill[originKind(n.Origin)])
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's point-based svg header with one that
// scales cleanly when embedded.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
