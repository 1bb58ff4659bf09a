// Package render draws a lock graph as a node-link diagram.
//
// It is a diagnostic aid: seeing which packages come from git, which are
// local and where cargo tolerated a cycle explains most surprises in a
// generated source list.
//
// # Usage
//
// Convert a graph to DOT, then render to SVG:
//
//	dot := render.ToDOT(g, render.Options{Detailed: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// # DOT Format
//
// The generated DOT uses top-to-bottom layout (rankdir=TB) with rounded box
// nodes. Nodes are filled by origin: white for registry packages, light blue
// for git and light yellow for local paths. Edges that close a dependency
// cycle are dashed.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering; no Graphviz installation is required.
package render
