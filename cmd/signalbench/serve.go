package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/delaneyj/cascade/pkg/dot"
	"github.com/delaneyj/cascade/pkg/instrument"
	"github.com/delaneyj/cascade/pkg/persist"
	"github.com/delaneyj/cascade/reactive"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

const (
	addrKey     = "addr"
	stateDirKey = "state-dir"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve named numeric signals and their sum over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  addrKey,
				Usage: "Listen address",
			},
			&cli.StringFlag{
				Name:      stateDirKey,
				Usage:     "Persist signals under this directory",
				TakesFile: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := configFrom(ctx).Serve
			if cmd.IsSet(addrKey) {
				cfg.Addr = cmd.String(addrKey)
			}
			if cmd.IsSet(stateDirKey) {
				cfg.StateDir = cmd.String(stateDirKey)
			}
			return runServe(ctx, loggerFrom(ctx), cfg)
		},
	}
}

func runServe(ctx context.Context, logger *slog.Logger, cfg ServeConfig) error {
	var storage persist.Storage = persist.NewMemoryStorage()
	if cfg.StateDir != "" {
		fs, err := persist.NewFileStorage(afero.NewOsFs(), cfg.StateDir)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		storage = fs
	}

	registry := prometheus.NewRegistry()
	srv, err := newServer(ctx, logger, storage, registry)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", cfg.Addr, "state_dir", cfg.StateDir)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

// keyLister is implemented by storages that can enumerate what they hold.
type keyLister interface {
	Keys() ([]string, error)
}

// server owns one reactive system. Every access to it happens with mu held.
type server struct {
	mu       sync.Mutex
	ctx      context.Context
	rs       *reactive.ReactiveSystem
	storage  persist.Storage
	logger   *slog.Logger
	registry *prometheus.Registry

	signals map[string]*persist.Persisted[float64]
	names   *reactive.WriteableSignal[[]string]
	sum     *reactive.ReadonlySignal[float64]
	watch   *reactive.EffectRunner

	upgrader websocket.Upgrader
}

func newServer(ctx context.Context, logger *slog.Logger, storage persist.Storage, registry *prometheus.Registry) (*server, error) {
	hooks := instrument.Multi(
		instrument.NewPrometheus(instrument.WithRegistry(registry)),
		instrument.NewLogger(logger),
		instrument.NewTracer(nil).WithContext(ctx),
	)

	s := &server{
		ctx:      ctx,
		storage:  storage,
		logger:   logger,
		registry: registry,
		rs: reactive.CreateReactiveSystem(
			reactive.WithLogger(logger),
			reactive.WithHooks(hooks),
		),
		signals: map[string]*persist.Persisted[float64]{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	var names []string
	if lister, ok := storage.(keyLister); ok {
		keys, err := lister.Keys()
		if err != nil {
			return nil, fmt.Errorf("serve: list state: %w", err)
		}
		for _, key := range keys {
			p, err := s.persisted(key, 0)
			if err != nil {
				return nil, err
			}
			s.signals[key] = p
			names = append(names, key)
		}
	}
	slices.Sort(names)

	s.names = reactive.Signal(s.rs, names).Named("names").WithEquals(slices.Equal[[]string])
	s.sum = reactive.MustComputed(s.rs, func() float64 {
		total := 0.0
		for _, name := range s.names.Get() {
			total += s.signals[name].Get()
		}
		return total
	}).Named("sum")

	var err error
	s.watch, err = reactive.Effect(s.rs, func() (reactive.Cleanup, error) {
		s.logger.Debug("sum changed", "sum", s.sum.Get())
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.watch.Named("log-sum")

	logger.Info("restored signals", "count", len(names))
	return s, nil
}

func (s *server) persisted(name string, initial float64) (*persist.Persisted[float64], error) {
	return persist.Signal(s.rs, s.storage, name, initial, persist.WithContext[float64](s.ctx))
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/signals", s.handleList)
	r.Get("/signals/{name}", s.handleGet)
	r.Put("/signals/{name}", s.handlePut)
	r.Delete("/signals/{name}", s.handleDelete)
	r.Get("/graph", s.handleGraph)
	r.Get("/watch", s.handleWatch)
	return r
}

// snapshot is the JSON form of the whole state.
type snapshot struct {
	Signals map[string]float64 `json:"signals"`
	Sum     float64            `json:"sum"`
}

type valueBody struct {
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value"`
}

// read collects the current state. Called with mu held; reads made inside a
// computation are tracked.
func (s *server) read() snapshot {
	snap := snapshot{Signals: map[string]float64{}}
	for _, name := range s.names.Get() {
		snap.Signals[name] = s.signals[name].Get()
	}
	snap.Sum = s.sum.Get()
	return snap
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap := s.read()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	p, ok := s.signals[name]
	var v float64
	if ok {
		v = p.Get()
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "signal not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, valueBody{Name: name, Value: v})
}

func (s *server) handlePut(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body valueBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	status, err := s.put(name, body.Value)
	if err != nil {
		s.logger.Error("set signal failed", "name", name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, valueBody{Name: name, Value: body.Value})
}

// put sets name to v, creating the signal first when needed, and reports
// whether it was created.
func (s *server) put(name string, v float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.signals[name]; ok {
		return http.StatusOK, p.Set(v)
	}

	p, err := s.persisted(name, v)
	if err != nil {
		return 0, err
	}
	// a stored value under an unknown name still takes v
	if err := p.Set(v); err != nil {
		// the key keeps whatever it held before
		p.Dispose()
		return 0, err
	}
	s.signals[name] = p

	names := append(slices.Clone(s.names.Peek()), name)
	slices.Sort(names)
	return http.StatusCreated, s.names.Set(names)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	found, err := s.remove(name)
	s.mu.Unlock()

	switch {
	case err != nil:
		s.logger.Error("remove signal failed", "name", name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case !found:
		http.Error(w, "signal not found", http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// remove drops name from the names list before disposing its signal, so sum
// recomputes without it instead of being disposed along with it.
func (s *server) remove(name string) (bool, error) {
	p, ok := s.signals[name]
	if !ok {
		return false, nil
	}

	names := slices.DeleteFunc(slices.Clone(s.names.Peek()), func(n string) bool {
		return n == name
	})
	if err := s.names.Set(names); err != nil {
		return true, err
	}
	delete(s.signals, name)
	return true, p.Remove()
}

func (s *server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots := []reactive.Node{s.names, s.sum}
	for _, name := range s.names.Peek() {
		roots = append(roots, s.signals[name])
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	dot.WriteGraph(w, dot.Options{Name: "signalbench", ShowDepth: true}, roots...)
}

// handleWatch streams a snapshot over a websocket every time the state
// changes, starting with the current one. Slow readers only see the latest.
func (s *server) handleWatch(w http.ResponseWriter, r *http.Request) {
	updates := make(chan snapshot, 1)

	// the watcher exists before the handshake completes so no change made
	// after it is missed
	s.mu.Lock()
	watcher, err := reactive.Effect(s.rs, func() (reactive.Cleanup, error) {
		snap := s.read()
		select {
		case <-updates:
		default:
		}
		updates <- snap
		return nil, nil
	})
	if err == nil {
		watcher.Named("watch:" + r.RemoteAddr)
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("watch failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		s.mu.Lock()
		watcher.Dispose()
		s.mu.Unlock()
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure) {
					s.logger.Warn("watch read failed", "err", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case snap := <-updates:
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Warn("watch write failed", "err", err)
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
