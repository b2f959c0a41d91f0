package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/delaneyj/cascade/pkg/persist"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStorage fails writes while fail is set.
type flakyStorage struct {
	*persist.MemoryStorage
	fail atomic.Bool
}

func (f *flakyStorage) Set(ctx context.Context, key string, data []byte) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Set(ctx, key, data)
}

func newTestServer(t *testing.T, storage persist.Storage) (*server, *httptest.Server) {
	t.Helper()

	srv, err := newServer(context.Background(), discardLogger(), storage, prometheus.NewRegistry())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func list(t *testing.T, ts *httptest.Server) snapshot {
	t.Helper()

	resp, body := do(t, http.MethodGet, ts.URL+"/signals", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	return snap
}

func TestServeSignals(t *testing.T) {
	storage := persist.NewMemoryStorage()
	_, ts := newTestServer(t, storage)

	snap := list(t, ts)
	assert.Empty(t, snap.Signals)
	assert.Zero(t, snap.Sum)

	resp, _ := do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 1.5}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, ts.URL+"/signals/b", `{"value": 2}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 3}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	snap = list(t, ts)
	assert.Equal(t, map[string]float64{"a": 3, "b": 2}, snap.Signals)
	assert.Equal(t, 5.0, snap.Sum)

	resp, body := do(t, http.MethodGet, ts.URL+"/signals/b", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"b","value":2}`, body)

	data, ok, err := storage.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", strings.TrimSpace(string(data)))
}

func TestServeDelete(t *testing.T) {
	storage := persist.NewMemoryStorage()
	srv, ts := newTestServer(t, storage)

	do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 1}`)
	do(t, http.MethodPut, ts.URL+"/signals/b", `{"value": 2}`)

	resp, _ := do(t, http.MethodDelete, ts.URL+"/signals/a", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap := list(t, ts)
	assert.Equal(t, map[string]float64{"b": 2}, snap.Signals)
	assert.Equal(t, 2.0, snap.Sum)
	assert.False(t, srv.sum.IsDisposed(), "sum survives losing a dependency")
	assert.Equal(t, 1, storage.Len())

	resp, _ = do(t, http.MethodDelete, ts.URL+"/signals/a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/signals/a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeBadBody(t *testing.T) {
	_, ts := newTestServer(t, persist.NewMemoryStorage())

	resp, _ := do(t, http.MethodPut, ts.URL+"/signals/a", `{"value":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, list(t, ts).Signals)
}

func TestServeRestoresState(t *testing.T) {
	fs := afero.NewMemMapFs()
	storage, err := persist.NewFileStorage(fs, "/state")
	require.NoError(t, err)

	_, ts := newTestServer(t, storage)
	do(t, http.MethodPut, ts.URL+"/signals/x", `{"value": 4}`)
	do(t, http.MethodPut, ts.URL+"/signals/y", `{"value": 6}`)
	ts.Close()

	storage, err = persist.NewFileStorage(fs, "/state")
	require.NoError(t, err)
	_, ts = newTestServer(t, storage)

	snap := list(t, ts)
	assert.Equal(t, map[string]float64{"x": 4, "y": 6}, snap.Signals)
	assert.Equal(t, 10.0, snap.Sum)
}

func TestServeGraph(t *testing.T) {
	_, ts := newTestServer(t, persist.NewMemoryStorage())
	do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 1}`)

	resp, body := do(t, http.MethodGet, ts.URL+"/graph", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/vnd.graphviz")
	assert.Contains(t, body, `digraph "signalbench" {`)
	assert.Contains(t, body, `label="names\nsignal"`)
	assert.Contains(t, body, `label="sum\ncomputed d=`)
	assert.Contains(t, body, `label="persist:a\neffect`)
}

func TestServeMetrics(t *testing.T) {
	_, ts := newTestServer(t, persist.NewMemoryStorage())
	do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 1}`)
	do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 2}`)

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "cascade_effect_runs_total")
	assert.Contains(t, body, "cascade_flushes_total")
}

func TestServeWatch(t *testing.T) {
	_, ts := newTestServer(t, persist.NewMemoryStorage())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	next := func() snapshot {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var snap snapshot
		require.NoError(t, conn.ReadJSON(&snap))
		return snap
	}

	assert.Empty(t, next().Signals)

	do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 7}`)
	snap := next()
	assert.Equal(t, map[string]float64{"a": 7}, snap.Signals)
	assert.Equal(t, 7.0, snap.Sum)
}

func TestServeFailedCreateIsDisposed(t *testing.T) {
	storage := &flakyStorage{MemoryStorage: persist.NewMemoryStorage()}
	require.NoError(t, storage.MemoryStorage.Set(context.Background(), "a", []byte("5")))
	_, ts := newTestServer(t, storage)

	storage.fail.Store(true)
	resp, _ := do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 7}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, list(t, ts).Signals)

	_, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Contains(t, body, `cascade_disposals_total{kind="signal"} 1`)
	assert.Contains(t, body, `cascade_disposals_total{kind="effect"} 1`)

	storage.fail.Store(false)
	resp, _ = do(t, http.MethodPut, ts.URL+"/signals/a", `{"value": 7}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]float64{"a": 7}, list(t, ts).Signals)
}
