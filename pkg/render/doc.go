// Package render draws a resolved lock as a dependency diagram.
//
// [ToDOT] turns lock entries into Graphviz DOT source: one box per locked
// package, an arrow per recorded dependency, with the project's direct
// dependencies highlighted. [RenderSVG] lays the DOT out in-process.
//
//	dot := render.ToDOT(lock.Packages, roots, render.Options{Detailed: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// Output is deterministic: nodes and edges are written sorted by name, so
// equal locks produce identical DOT.
//
// This package uses [github.com/goccy/go-graphviz] for rendering; no
// Graphviz installation is needed.
package render
