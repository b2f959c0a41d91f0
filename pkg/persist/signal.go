package persist

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/cascade/reactive"
)

// Persisted is a writable signal mirrored to a Storage key. Reads and writes
// go through the embedded signal; every committed change is encoded and
// written back by an internal effect.
type Persisted[T any] struct {
	*reactive.WriteableSignal[T]

	rs      *reactive.ReactiveSystem
	storage Storage
	key     string
	codec   Codec[T]
	ctx     context.Context

	writer *reactive.EffectRunner
	// fingerprint of the payload last known to be stored
	stored    uint64
	hasStored bool
	writes    int
}

type Option[T any] func(*Persisted[T])

// WithCodec replaces the default JSON codec.
func WithCodec[T any](codec Codec[T]) Option[T] {
	return func(p *Persisted[T]) {
		if codec != nil {
			p.codec = codec
		}
	}
}

// WithContext sets the context storage calls are made with.
func WithContext[T any](ctx context.Context) Option[T] {
	return func(p *Persisted[T]) {
		if ctx != nil {
			p.ctx = ctx
		}
	}
}

// Signal creates a signal whose value lives under key in storage. A stored
// value wins over initial; an unreadable one is logged and replaced. The
// current value is written back immediately if the store does not hold it.
func Signal[T any](rs *reactive.ReactiveSystem, storage Storage, key string, initial T, opts ...Option[T]) (*Persisted[T], error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	p := &Persisted[T]{
		rs:      rs,
		storage: storage,
		key:     key,
		codec:   JSON[T](),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}

	value := initial
	data, ok, err := storage.Get(p.ctx, key)
	if err != nil {
		return nil, fmt.Errorf("persist: load %q: %w", key, err)
	}
	if ok {
		v, err := p.codec.Unmarshal(data)
		if err != nil {
			rs.Logger().Warn("discarding unreadable persisted value",
				"key", key,
				"err", err,
			)
		} else {
			value = v
			p.stored, p.hasStored = xxhash.Sum64(data), true
		}
	}

	p.WriteableSignal = reactive.Signal(rs, value).Named(key)
	p.writer, err = reactive.Effect(rs, p.writeThrough)
	if err != nil {
		p.WriteableSignal.Dispose()
		return nil, err
	}
	p.writer.Named("persist:" + key)
	return p, nil
}

func (p *Persisted[T]) writeThrough() (reactive.Cleanup, error) {
	v := p.WriteableSignal.Get()

	data, err := p.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("persist: encode %q: %w", p.key, err)
	}
	sum := xxhash.Sum64(data)
	if p.hasStored && sum == p.stored {
		return nil, nil
	}

	if err := p.storage.Set(p.ctx, p.key, data); err != nil {
		return nil, err
	}
	p.stored, p.hasStored = sum, true
	p.writes++
	p.rs.Logger().Debug("persisted signal",
		"key", p.key,
		"bytes", len(data),
	)
	return nil, nil
}

func (p *Persisted[T]) Key() string {
	return p.key
}

// Writes is the number of payloads written to storage so far.
func (p *Persisted[T]) Writes() int {
	return p.writes
}

// Remove deletes the stored value and disposes the signal, along with
// everything derived from it.
func (p *Persisted[T]) Remove() error {
	p.WriteableSignal.Dispose()
	p.hasStored = false
	if err := p.storage.Remove(p.ctx, p.key); err != nil {
		return fmt.Errorf("persist: remove %q: %w", p.key, err)
	}
	return nil
}
