package reactive

import mapset "github.com/deckarep/golang-set/v2"

// dispose tears down root and everything that depended on it. Chains can be
// arbitrarily deep so the cascade runs on an explicit stack.
func (rs *ReactiveSystem) dispose(root disposer) {
	visited := mapset.NewThreadUnsafeSet[disposer]()
	stack := []disposer{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Contains(n) {
			continue
		}
		visited.Add(n)
		stack = append(stack, n.release()...)
	}
}
