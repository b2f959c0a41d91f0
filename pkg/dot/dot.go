// Package dot renders a live dependency graph in Graphviz DOT format.
package dot

import (
	"cmp"
	"io"
	"slices"
	"strings"

	"github.com/delaneyj/cascade/reactive"
	"github.com/valyala/quicktemplate"
)

// Options tweak the rendered graph.
type Options struct {
	// Name of the digraph (default: "cascade").
	Name string
	// RankDir is the graphviz layout direction (default: "LR").
	RankDir string
	// ShowDepth adds each computation's depth to its label.
	ShowDepth bool
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "cascade"
	}
	if o.RankDir == "" {
		o.RankDir = "LR"
	}
	return o
}

type dirtier interface {
	IsDirty() bool
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// StreamGraph writes the graph connected to roots to qw. Every node reachable
// through dependency or dependent edges is rendered once, in creation order.
func StreamGraph(qw *quicktemplate.Writer, opts Options, roots ...reactive.Node) {
	opts = opts.withDefaults()

	var nodes []reactive.Node
	reactive.Walk(func(n reactive.Node) bool {
		nodes = append(nodes, n)
		return true
	}, roots...)
	sortByID(nodes)

	w := qw.N()
	w.S("digraph ")
	w.S(escapeID(opts.Name))
	w.S(" {\n")
	w.S("\trankdir=")
	w.S(opts.RankDir)
	w.S(";\n")
	w.S("\tnode [fontname=\"Helvetica\" fontsize=10];\n")

	for _, n := range nodes {
		streamNode(w, opts, n)
	}
	for _, n := range nodes {
		for _, dep := range n.Dependencies() {
			w.S("\tn")
			w.DUL(dep.ID())
			w.S(" -> n")
			w.DUL(n.ID())
			w.S(";\n")
		}
	}
	w.S("}\n")
}

func streamNode(w *quicktemplate.QWriter, opts Options, n reactive.Node) {
	w.S("\tn")
	w.DUL(n.ID())
	w.S(" [label=\"")
	w.S(escaper.Replace(n.Name()))
	w.S(`\n`)
	w.S(n.Kind().String())
	if opts.ShowDepth && n.Kind() != reactive.KindSignal {
		w.S(" d=")
		w.D(n.Depth())
	}
	w.S("\" shape=")
	switch n.Kind() {
	case reactive.KindSignal:
		w.S("ellipse")
	case reactive.KindComputed:
		w.S("box")
	default:
		w.S("diamond")
	}

	switch {
	case n.IsDisposed():
		w.S(" style=dashed color=gray")
	case isDirty(n):
		w.S(" color=orange")
	}
	w.S("];\n")
}

func isDirty(n reactive.Node) bool {
	d, ok := n.(dirtier)
	return ok && d.IsDirty()
}

func escapeID(s string) string {
	return "\"" + escaper.Replace(s) + "\""
}

func sortByID(nodes []reactive.Node) {
	slices.SortFunc(nodes, func(a, b reactive.Node) int {
		return cmp.Compare(a.ID(), b.ID())
	})
}

// WriteGraph writes the graph connected to roots to w.
func WriteGraph(w io.Writer, opts Options, roots ...reactive.Node) {
	qw := quicktemplate.AcquireWriter(w)
	StreamGraph(qw, opts, roots...)
	quicktemplate.ReleaseWriter(qw)
}

// Graph returns the graph connected to roots as a string.
func Graph(opts Options, roots ...reactive.Node) string {
	qb := quicktemplate.AcquireByteBuffer()
	WriteGraph(qb, opts, roots...)
	s := string(qb.B)
	quicktemplate.ReleaseByteBuffer(qb)
	return s
}
