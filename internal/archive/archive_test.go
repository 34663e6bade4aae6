package archive

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisStore := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	return map[string]Store{"fs": fsStore, "redis": redisStore}
}

func keys(objs []Object) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Key)
	}
	slices.Sort(out)
	return out
}

func TestStore_PutIfAbsent(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := quest.StartedKey("42")

			created, err := store.PutIfAbsent(ctx, key, []byte(`{"v":1}`))
			require.NoError(t, err)
			assert.True(t, created)

			created, err = store.PutIfAbsent(ctx, key, []byte(`{"v":2}`))
			require.NoError(t, err)
			assert.False(t, created)

			body, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":1}`, string(body))

			require.NoError(t, store.Put(ctx, key, []byte(`{"v":3}`)))
			body, err = store.Get(ctx, key)
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":3}`, string(body))
		})
	}
}

func TestStore_ListAndGet(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{
				quest.StartedKey("1"),
				quest.StartedKey("2"),
				quest.FinishedKey("1"),
				quest.FeedbackKey("1", "77"),
			} {
				_, err := store.PutIfAbsent(ctx, k, []byte("{}"))
				require.NoError(t, err)
			}

			objs, err := store.List(ctx, quest.StartedPrefix)
			require.NoError(t, err)
			assert.Equal(t, []string{"users/started/1", "users/started/2"}, keys(objs))
			for _, o := range objs {
				assert.False(t, o.ModifiedAt.IsZero())
				assert.Equal(t, int64(2), o.Size)
			}

			objs, err = store.List(ctx, quest.FeedbackPrefix)
			require.NoError(t, err)
			assert.Equal(t, []string{"users/feedback/1/77"}, keys(objs))

			_, err = store.Get(ctx, "users/started/missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RejectsBadKeys(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.PutIfAbsent(context.Background(), "../escape", []byte("x"))
			assert.Error(t, err)
			assert.Error(t, store.Put(context.Background(), "", []byte("x")))
		})
	}
}

// slowStore blocks writes until release is closed.
type slowStore struct {
	Store
	release chan struct{}
	fail    error
	mu      sync.Mutex
	keys    []string
}

func (s *slowStore) PutIfAbsent(ctx context.Context, key string, body []byte) (bool, error) {
	<-s.release
	if s.fail != nil {
		return false, s.fail
	}
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return s.Store.PutIfAbsent(ctx, key, body)
}

func TestWriter_DrainsOnClose(t *testing.T) {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	store := &slowStore{Store: fsStore, release: make(chan struct{})}
	w := NewWriter(store, 10, testLogger())

	for _, id := range []string{"1", "2", "3"} {
		w.Submit(quest.ArchiveRecord{Key: quest.StartedKey(id), Payload: []byte("{}")})
	}
	w.Submit(quest.ArchiveRecord{Key: quest.StartedKey("1"), Payload: []byte("{}")})
	close(store.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []string{"users/started/1", "users/started/2", "users/started/3", "users/started/1"}, store.keys)
	assert.Equal(t, WriterStats{Written: 3, Skipped: 1}, w.Stats())

	w.Submit(quest.ArchiveRecord{Key: "users/started/4"})
	assert.Equal(t, int64(1), w.Stats().Dropped)
}

func TestWriter_DropsWhenFull(t *testing.T) {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	store := &slowStore{Store: fsStore, release: make(chan struct{})}
	w := NewWriter(store, 1, testLogger())

	done := make(chan struct{})
	go func() {
		for i := range 10 {
			w.Submit(quest.ArchiveRecord{Key: quest.FeedbackKey("1", string(rune('a'+i))), Payload: []byte("{}")})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	close(store.release)
	require.NoError(t, w.Close(context.Background()))

	st := w.Stats()
	assert.Equal(t, int64(10), st.Written+st.Dropped)
	assert.GreaterOrEqual(t, st.Dropped, int64(8))
}

func TestWriter_FailuresAreSwallowed(t *testing.T) {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	store := &slowStore{Store: fsStore, release: make(chan struct{}), fail: errors.New("bucket gone")}
	close(store.release)
	w := NewWriter(store, 4, testLogger())

	w.Submit(quest.ArchiveRecord{Key: quest.FinishedKey("9"), Payload: []byte("{}")})
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, int64(1), w.Stats().Failed)
}
