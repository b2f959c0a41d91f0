package reactive

import "time"

// Hooks observes the engine. Implementations must not touch the graph.
type Hooks interface {
	// Recomputed fires after a computed signal ran its function.
	Recomputed(n Node, changed bool, took time.Duration)
	// EffectRan fires after an effect body ran, err is its failure if any.
	EffectRan(n Node, took time.Duration, err error)
	// Flushed fires when the update queue drained.
	Flushed(rounds, processed int, took time.Duration, err error)
	// BatchCommitted fires when the outermost batch ends, with the number of
	// distinct signals written inside it.
	BatchCommitted(signals int)
	// Disposed fires once per node torn down.
	Disposed(n Node)
}

// NopHooks ignores everything.
type NopHooks struct{}

func (NopHooks) Recomputed(Node, bool, time.Duration)   {}
func (NopHooks) EffectRan(Node, time.Duration, error)   {}
func (NopHooks) Flushed(int, int, time.Duration, error) {}
func (NopHooks) BatchCommitted(int)                     {}
func (NopHooks) Disposed(Node)                          {}
