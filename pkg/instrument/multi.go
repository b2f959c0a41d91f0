package instrument

import (
	"log/slog"
	"time"

	"github.com/delaneyj/cascade/reactive"
)

type multi []reactive.Hooks

// Multi fans every event out to each of hooks in order. Nil entries are
// skipped.
func Multi(hooks ...reactive.Hooks) reactive.Hooks {
	m := make(multi, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			m = append(m, h)
		}
	}
	return m
}

func (m multi) Recomputed(n reactive.Node, changed bool, took time.Duration) {
	for _, h := range m {
		h.Recomputed(n, changed, took)
	}
}

func (m multi) EffectRan(n reactive.Node, took time.Duration, err error) {
	for _, h := range m {
		h.EffectRan(n, took, err)
	}
}

func (m multi) Flushed(rounds, processed int, took time.Duration, err error) {
	for _, h := range m {
		h.Flushed(rounds, processed, took, err)
	}
}

func (m multi) BatchCommitted(signals int) {
	for _, h := range m {
		h.BatchCommitted(signals)
	}
}

func (m multi) Disposed(n reactive.Node) {
	for _, h := range m {
		h.Disposed(n)
	}
}

// Logger writes every event to a slog.Logger at debug level.
type Logger struct {
	logger *slog.Logger
}

var _ reactive.Hooks = (*Logger)(nil)

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "cascade")}
}

func (l *Logger) Recomputed(n reactive.Node, changed bool, took time.Duration) {
	l.logger.Debug("recomputed",
		"node", n.Name(),
		"changed", changed,
		"took", took,
	)
}

func (l *Logger) EffectRan(n reactive.Node, took time.Duration, err error) {
	l.logger.Debug("effect ran",
		"node", n.Name(),
		"took", took,
		"err", err,
	)
}

func (l *Logger) Flushed(rounds, processed int, took time.Duration, err error) {
	l.logger.Debug("flushed",
		"rounds", rounds,
		"processed", processed,
		"took", took,
		"err", err,
	)
}

func (l *Logger) BatchCommitted(signals int) {
	l.logger.Debug("batch committed", "signals", signals)
}

func (l *Logger) Disposed(n reactive.Node) {
	l.logger.Debug("disposed",
		"node", n.Name(),
		"kind", n.Kind().String(),
	)
}
