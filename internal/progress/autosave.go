package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSaveDelay is the quiet period after the last keystroke before a
// save is written.
const DefaultSaveDelay = time.Second

// AutoSaver coalesces rapid saves per key into one write after a quiet
// period. Each key keeps a minimum generation: records captured under an
// older generation are dropped, whether still pending or about to be
// written. Writes and resets for a key are serialized, so a stale save can
// never land after a reset.
type AutoSaver struct {
	store   Store
	delay   time.Duration
	log     *zap.Logger
	onError func(Key, error)

	mu   sync.Mutex
	keys map[Key]*pendingSave
}

type pendingSave struct {
	write  sync.Mutex // held across store calls for this key
	timer  *time.Timer
	rec    *Record
	minGen uint64
}

// AutoSaveOption configures an AutoSaver.
type AutoSaveOption func(*AutoSaver)

// WithDelay sets the quiet period.
func WithDelay(d time.Duration) AutoSaveOption {
	return func(a *AutoSaver) { a.delay = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) AutoSaveOption {
	return func(a *AutoSaver) { a.log = l }
}

// WithErrorHandler is called with every failed background save.
func WithErrorHandler(fn func(Key, error)) AutoSaveOption {
	return func(a *AutoSaver) { a.onError = fn }
}

// NewAutoSaver wraps store.
func NewAutoSaver(store Store, opts ...AutoSaveOption) *AutoSaver {
	a := &AutoSaver{
		store: store,
		delay: DefaultSaveDelay,
		log:   zap.NewNop(),
		keys:  make(map[Key]*pendingSave),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AutoSaver) entry(key Key) *pendingSave {
	p, ok := a.keys[key]
	if !ok {
		p = &pendingSave{}
		a.keys[key] = p
	}
	return p
}

// Schedule queues rec for key, replacing any pending record and restarting
// the quiet period. Records older than the key's minimum generation are
// ignored.
func (a *AutoSaver) Schedule(key Key, rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.entry(key)
	if rec.Generation < p.minGen {
		a.log.Debug("dropping stale save",
			zap.Stringer("key", key),
			zap.Uint64("generation", rec.Generation),
			zap.Uint64("min_generation", p.minGen))
		return
	}
	p.rec = &rec
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(a.delay, func() {
		// Errors are reported through onError.
		_ = a.flushKey(context.Background(), key)
	})
}

// Pending reports whether a save is queued for key.
func (a *AutoSaver) Pending(key Key) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.keys[key]
	return ok && p.rec != nil
}

// flushKey writes the pending record for key. onError runs after the key's
// write lock is released, so the handler may call back into code that
// resets or saves the same key.
func (a *AutoSaver) flushKey(ctx context.Context, key Key) error {
	err := a.writeKey(ctx, key)
	if err != nil && a.onError != nil {
		a.onError(key, err)
	}
	return err
}

func (a *AutoSaver) writeKey(ctx context.Context, key Key) error {
	a.mu.Lock()
	p, ok := a.keys[key]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	p.write.Lock()
	defer p.write.Unlock()

	a.mu.Lock()
	rec := p.rec
	p.rec = nil
	minGen := p.minGen
	a.mu.Unlock()

	if rec == nil {
		return nil
	}
	if rec.Generation < minGen {
		a.log.Debug("discarding stale save",
			zap.Stringer("key", key),
			zap.Uint64("generation", rec.Generation))
		return nil
	}
	if err := a.store.Save(ctx, key, *rec); err != nil {
		a.log.Warn("progress save failed", zap.Stringer("key", key), zap.Error(err))
		return err
	}
	a.log.Debug("progress saved", zap.Stringer("key", key), zap.Uint64("generation", rec.Generation))
	return nil
}

// Flush writes every pending record now.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	keys := make([]Key, 0, len(a.keys))
	for k, p := range a.keys {
		if p.rec == nil {
			continue
		}
		if p.timer != nil {
			p.timer.Stop()
		}
		keys = append(keys, k)
	}
	a.mu.Unlock()

	var errs []error
	for _, k := range keys {
		if err := a.flushKey(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cancel drops any pending save for key and rejects records captured
// before generation. It waits for an in-flight write of key to finish.
func (a *AutoSaver) Cancel(key Key, generation uint64) {
	a.mu.Lock()
	p := a.entry(key)
	a.mu.Unlock()

	p.write.Lock()
	defer p.write.Unlock()
	a.cancelLocked(p, generation)
}

func (a *AutoSaver) cancelLocked(p *pendingSave, generation uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.rec = nil
	if generation > p.minGen {
		p.minGen = generation
	}
}

// Reset cancels pending saves for key as Cancel does, then deletes the
// stored record. No save captured before generation can be written after
// Reset returns.
func (a *AutoSaver) Reset(ctx context.Context, key Key, generation uint64) error {
	a.mu.Lock()
	p := a.entry(key)
	a.mu.Unlock()

	p.write.Lock()
	defer p.write.Unlock()
	a.cancelLocked(p, generation)
	return a.store.Reset(ctx, key)
}

// Forget drops key entirely, discarding any pending save.
func (a *AutoSaver) Forget(key Key) {
	a.mu.Lock()
	p, ok := a.keys[key]
	a.mu.Unlock()
	if !ok {
		return
	}
	p.write.Lock()
	defer p.write.Unlock()
	a.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(a.keys, key)
	a.mu.Unlock()
}
