package reactive

import (
	"sync"

	"github.com/petermattis/goid"
)

var systems sync.Map

// Default returns the system bound to the calling goroutine, creating it on
// first use. Each goroutine gets its own graph, so nodes must not be shared
// across goroutines that use Default.
func Default() *ReactiveSystem {
	gid := goid.Get()
	if rs, ok := systems.Load(gid); ok {
		return rs.(*ReactiveSystem)
	}

	rs := CreateReactiveSystem()
	systems.Store(gid, rs)
	return rs
}

// ResetDefault forgets the calling goroutine's default system. It should be
// called before a long-lived goroutine exits, and between tests.
func ResetDefault() {
	systems.Delete(goid.Get())
}
