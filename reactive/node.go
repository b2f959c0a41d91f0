package reactive

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

type NodeKind uint8

const (
	KindSignal NodeKind = iota
	KindComputed
	KindEffect
)

func (k NodeKind) String() string {
	switch k {
	case KindSignal:
		return "signal"
	case KindComputed:
		return "computed"
	case KindEffect:
		return "effect"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Node is the introspection view shared by every graph node.
type Node interface {
	ID() uint64
	Name() string
	Kind() NodeKind
	Depth() int
	IsDisposed() bool
	// Dependencies are the nodes read during the last run.
	Dependencies() []Node
	// Dependents are the nodes that read this one during their last run.
	Dependents() []Node
}

// source is anything a computation can depend on.
type source interface {
	Node
	addDependent(c *Computation)
	removeDependent(c *Computation)
	dependentComputations() []*Computation
	// driver is the computation producing the value, nil for plain signals.
	driver() *Computation
}

// owner is the node a computation runs on behalf of.
type owner interface {
	Node
	disposer
	recompute()
}

// disposer is a single step of a disposal cascade.
type disposer interface {
	// release tears down this node only and returns the nodes that can no
	// longer survive without it.
	release() []disposer
}

func nodeName(kind NodeKind, id uint64, name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s#%d", kind, id)
}

func sortNodes(nodes []Node) []Node {
	slices.SortFunc(nodes, func(a, b Node) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return nodes
}

// Walk visits every node connected to roots, following edges in both
// directions, once each. Returning false from fn stops the walk.
func Walk(fn func(Node) bool, roots ...Node) {
	visited := mapset.NewThreadUnsafeSet[uint64]()
	queue := make([]Node, 0, len(roots))
	for _, r := range roots {
		if r != nil {
			queue = append(queue, r)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited.Contains(n.ID()) {
			continue
		}
		visited.Add(n.ID())

		if !fn(n) {
			return
		}
		queue = append(queue, n.Dependencies()...)
		queue = append(queue, n.Dependents()...)
	}
}
