package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// countingStore wraps a MemoryStore, counting saves and optionally failing.
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
	fail  error
	block chan struct{}
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Save(ctx context.Context, key Key, rec Record) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.saves++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return &PersistenceError{Op: "save", Key: key, Err: fail}
	}
	return s.MemoryStore.Save(ctx, key, rec)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func recordWith(letter string, gen uint64) Record {
	return Record{Date: "2026-10-17", Answers: [][]string{{letter}}, Generation: gen}
}

func loadLetter(t *testing.T, s Store, key Key) string {
	t.Helper()
	rec, err := s.Load(context.Background(), key, 0)
	require.NoError(t, err)
	if rec == nil {
		return ""
	}
	return rec.Answers[0][0]
}

func TestAutoSaverCoalesces(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newCountingStore()
	a := NewAutoSaver(store, WithDelay(20*time.Millisecond))
	key := Key{Owner: "alice", Date: "2026-10-17"}

	for _, l := range []string{"A", "B", "C", "D"} {
		a.Schedule(key, recordWith(l, 1))
	}
	assert.True(t, a.Pending(key))

	require.Eventually(t, func() bool { return store.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "D", loadLetter(t, store, key))
	assert.False(t, a.Pending(key))

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, store.saveCount())
}

func TestAutoSaverFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newCountingStore()
	a := NewAutoSaver(store, WithDelay(time.Hour))
	k1 := Key{Owner: "alice", Date: "2026-10-17"}
	k2 := Key{Owner: "bob", Date: "2026-10-17"}
	a.Schedule(k1, recordWith("A", 1))
	a.Schedule(k2, recordWith("B", 1))

	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, 2, store.saveCount())
	assert.Equal(t, "A", loadLetter(t, store, k1))
	assert.Equal(t, "B", loadLetter(t, store, k2))
}

func TestAutoSaverResetDropsPendingSave(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newCountingStore()
	a := NewAutoSaver(store, WithDelay(20*time.Millisecond))
	key := Key{Owner: "alice", Date: "2026-10-17"}
	require.NoError(t, store.MemoryStore.Save(context.Background(), key, recordWith("OLD", 1)))

	a.Schedule(key, recordWith("A", 1))
	require.NoError(t, a.Reset(context.Background(), key, 2))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.saveCount())
	assert.Equal(t, "", loadLetter(t, store, key))

	// A stale record scheduled after the reset is ignored; a fresh one
	// is written.
	a.Schedule(key, recordWith("STALE", 1))
	assert.False(t, a.Pending(key))
	a.Schedule(key, recordWith("N", 2))
	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, "N", loadLetter(t, store, key))
}

func TestAutoSaverResetWaitsForInFlightSave(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newCountingStore()
	store.block = make(chan struct{})
	a := NewAutoSaver(store, WithDelay(time.Millisecond))
	key := Key{Owner: "alice", Date: "2026-10-17"}

	a.Schedule(key, recordWith("A", 1))
	// Let the timer fire and block inside Save.
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- a.Reset(context.Background(), key, 2) }()

	select {
	case <-done:
		t.Fatal("reset returned while a save was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(store.block)
	require.NoError(t, <-done)
	assert.Equal(t, "", loadLetter(t, store, key), "reset wins over the earlier save")
}

func TestAutoSaverReportsErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newCountingStore()
	store.fail = errors.New("disk full")

	var (
		mu     sync.Mutex
		failed []Key
	)
	a := NewAutoSaver(store,
		WithDelay(5*time.Millisecond),
		WithErrorHandler(func(k Key, err error) {
			var perr *PersistenceError
			if errors.As(err, &perr) {
				mu.Lock()
				failed = append(failed, k)
				mu.Unlock()
			}
		}),
	)
	key := Key{Owner: "alice", Date: "2026-10-17"}
	a.Schedule(key, recordWith("A", 1))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	}, time.Second, 5*time.Millisecond)

	a.Schedule(key, recordWith("B", 1))
	err := a.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}

func TestAutoSaverCancelAndForget(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newCountingStore()
	a := NewAutoSaver(store, WithDelay(10*time.Millisecond))
	key := Key{Owner: "alice", Date: "2026-10-17"}

	a.Schedule(key, recordWith("A", 1))
	a.Cancel(key, 1)
	assert.False(t, a.Pending(key))

	a.Schedule(key, recordWith("B", 1))
	a.Forget(key)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, store.saveCount())
}

func TestAutoSaverErrorHandlerMayResetSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newCountingStore()
	store.fail = errors.New("disk full")
	key := Key{Owner: "alice", Date: "2026-10-17"}

	var a *AutoSaver
	resetErr := make(chan error, 1)
	a = NewAutoSaver(store,
		WithDelay(time.Hour),
		WithErrorHandler(func(k Key, _ error) {
			resetErr <- a.Reset(context.Background(), k, 2)
		}),
	)
	a.Schedule(key, recordWith("A", 1))

	done := make(chan error, 1)
	go func() { done <- a.Flush(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "disk full")
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not return: error handler blocked on the key")
	}
	require.NoError(t, <-resetErr)
	assert.False(t, a.Pending(key))
}
