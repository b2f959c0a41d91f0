package persist_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/delaneyj/cascade/pkg/persist"
	"github.com/delaneyj/cascade/reactive"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type failingStorage struct {
	persist.Storage
	err error
}

func (f failingStorage) Set(context.Context, string, []byte) error {
	return f.err
}

func TestStorageContract(t *testing.T) {
	fileStore, err := persist.NewFileStorage(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)

	backends := map[string]persist.Storage{
		"memory": persist.NewMemoryStorage(),
		"file":   fileStore,
		"s3":     persist.NewS3Storage(newFakeS3(), "bucket", "state/"),
	}

	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "user/theme", []byte(`"dark"`)))
			data, ok, err := store.Get(ctx, "user/theme")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `"dark"`, string(data))

			require.NoError(t, store.Remove(ctx, "user/theme"))
			require.NoError(t, store.Remove(ctx, "user/theme"))
			_, ok, err = store.Get(ctx, "user/theme")
			require.NoError(t, err)
			assert.False(t, ok)

			require.ErrorIs(t, store.Set(ctx, "", nil), persist.ErrInvalidKey)
		})
	}
}

func TestFileStorageKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := persist.NewFileStorage(fs, "/state")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a/b", []byte("1")))
	require.NoError(t, store.Set(ctx, "c", []byte("2")))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/b", "c"}, keys)

	exists, err := afero.Exists(fs, "/state/c.dat")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSignalWritesThrough(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	store := persist.NewMemoryStorage()

	count, err := persist.Signal(rs, store, "count", 1)
	require.NoError(t, err)
	assert.Equal(t, "count", count.Key())
	assert.Equal(t, 1, count.Writes())

	doubled := reactive.MustComputed(rs, func() int { return count.Get() * 2 })
	require.NoError(t, count.Set(21))
	assert.Equal(t, 42, doubled.Get())

	data, ok, err := store.Get(context.Background(), "count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "21", string(data))
	assert.Equal(t, 2, count.Writes())
}

func TestSignalLoadsStoredValue(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	store := persist.NewMemoryStorage()
	require.NoError(t, store.Set(context.Background(), "name", []byte(`"stored"`)))

	name, err := persist.Signal(rs, store, "name", "initial")
	require.NoError(t, err)
	assert.Equal(t, "stored", name.Get())
	assert.Zero(t, name.Writes())
}

func TestSignalSkipsIdenticalPayloads(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	store := persist.NewMemoryStorage()

	tags, err := persist.Signal(rs, store, "tags", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1, tags.Writes())

	// a fresh slice is a new value but encodes to the same payload
	require.NoError(t, tags.Set([]string{"a"}))
	assert.Equal(t, 1, tags.Writes())

	require.NoError(t, tags.Set([]string{"a", "b"}))
	assert.Equal(t, 2, tags.Writes())
}

func TestSignalYAMLOverFileStorage(t *testing.T) {
	type settings struct {
		Theme    string `yaml:"theme"`
		FontSize int    `yaml:"font_size"`
	}

	fs := afero.NewMemMapFs()
	store, err := persist.NewFileStorage(fs, "/config")
	require.NoError(t, err)

	rs := reactive.CreateReactiveSystem()
	s, err := persist.Signal(rs, store, "settings", settings{Theme: "light", FontSize: 12},
		persist.WithCodec(persist.YAML[settings]()),
	)
	require.NoError(t, err)
	require.NoError(t, s.Update(func(v settings) settings {
		v.Theme = "dark"
		return v
	}))

	raw, err := afero.ReadFile(fs, "/config/settings.dat")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "theme: dark")

	// a second system sees what the first one wrote
	other := reactive.CreateReactiveSystem()
	reloaded, err := persist.Signal(other, store, "settings", settings{},
		persist.WithCodec(persist.YAML[settings]()),
	)
	require.NoError(t, err)
	assert.Equal(t, settings{Theme: "dark", FontSize: 12}, reloaded.Get())
}

func TestSignalOverS3(t *testing.T) {
	api := newFakeS3()
	store := persist.NewS3Storage(api, "bucket", "signals/").WithContentType("application/json")

	rs := reactive.CreateReactiveSystem()
	s, err := persist.Signal(rs, store, "visits", 0)
	require.NoError(t, err)
	require.NoError(t, s.Set(3))

	assert.Equal(t, []byte("3"), api.objects["bucket/signals/visits"])
	assert.Equal(t, 2, api.puts)
}

func TestSignalUnreadablePayloadFallsBack(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	store := persist.NewMemoryStorage()
	require.NoError(t, store.Set(context.Background(), "n", []byte("not json")))

	n, err := persist.Signal(rs, store, "n", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n.Get())

	data, _, err := store.Get(context.Background(), "n")
	require.NoError(t, err)
	assert.Equal(t, "7", string(data))
}

func TestSignalStorageFailure(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	errFull := errors.New("disk full")
	store := failingStorage{Storage: persist.NewMemoryStorage(), err: errFull}

	_, err := persist.Signal(rs, store, "n", 1)
	require.ErrorIs(t, err, errFull)

	_, err = persist.Signal(rs, persist.NewMemoryStorage(), "", 1)
	require.ErrorIs(t, err, persist.ErrInvalidKey)
}

func TestSignalRemove(t *testing.T) {
	rs := reactive.CreateReactiveSystem()
	store := persist.NewMemoryStorage()

	s, err := persist.Signal(rs, store, "session", "abc")
	require.NoError(t, err)
	derived := reactive.MustComputed(rs, func() int { return len(s.Get()) })
	assert.Equal(t, 3, derived.Get())
	assert.Equal(t, 1, store.Len())

	require.NoError(t, s.Remove())
	assert.Zero(t, store.Len())
	assert.True(t, s.IsDisposed())
	assert.True(t, derived.IsDisposed())
	require.ErrorIs(t, s.Set("xyz"), reactive.ErrDisposed)
	assert.Zero(t, store.Len())
}
