package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds the pinned version and markers to node labels.
	// When false, only the package name is shown.
	Detailed bool
}

// ToDOT converts lock entries to Graphviz DOT. Roots are drawn with a bold
// outline; dependencies that point outside entries are skipped.
func ToDOT(entries []manifest.LockEntry, roots []string, opts Options) string {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b manifest.LockEntry) int { return strings.Compare(a.Name, b.Name) })

	known := make(map[string]bool, len(sorted))
	for _, e := range sorted {
		known[e.Name] = true
	}
	isRoot := make(map[string]bool, len(roots))
	for _, r := range roots {
		isRoot[requirement.NormalizeName(r)] = true
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=24, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, e := range sorted {
		fmt.Fprintf(&buf, "  %q [%s];\n", e.Name, strings.Join(fmtAttrs(e, isRoot[e.Name], opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	for _, e := range sorted {
		deps := slices.Clone(e.Dependencies)
		slices.Sort(deps)
		for _, d := range slices.Compact(deps) {
			if known[d] {
				fmt.Fprintf(&buf, "  %q -> %q;\n", e.Name, d)
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(e manifest.LockEntry, detailed bool) string {
	if !detailed {
		return e.Name
	}
	label := e.Name + "\n" + e.Version
	if e.Markers != "" {
		label += "\n" + e.Markers
	}
	return label
}

func fmtAttrs(e manifest.LockEntry, root, detailed bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(e, detailed))}
	switch {
	case root:
		attrs = append(attrs, "penwidth=3")
	case e.Markers != "":
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey", "fontcolor=black")
	}
	return attrs
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

// normalizeViewBox replaces Graphviz's point-based svg header with one
// sized from the viewBox, so the image scales in browsers.
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
