// Package cache keeps expensive resources warm and releases them after a period of inactivity.
//
// Entries are leased: GetOrCreate hands back a release func along with the instance. The idle
// sweep never evicts an entry that is leased, and Clear on a leased entry only detaches it; the
// instance is closed once its last lease is released.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"golang.org/x/sync/singleflight"
)

// DefaultSweepInterval is how often the idle sweep checks the entries.
const DefaultSweepInterval = 60 * time.Second

// ErrClosed is returned by GetOrCreate after Close.
var ErrClosed = errors.New("cache is closed")

// Factory constructs a resource for a key.
type Factory[R io.Closer] func(ctx context.Context) (R, error)

// EntryStatus describes one cached entry for observability.
type EntryStatus struct {
	IdleSeconds      int `json:"idle_seconds"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	RemainingSeconds int `json:"remaining_seconds"`
	Leases           int `json:"leases"`
}

// Hooks are optional callbacks for loads and evictions.
type Hooks struct {
	OnLoad  func(key string, err error)
	OnEvict func(key string)
}

type entry[R io.Closer] struct {
	instance   R
	lastAccess time.Time
	timeout    time.Duration
	leases     int
	detached   bool
}

// Cache maps keys to live resource instances. At most one live instance exists per key.
type Cache[R io.Closer] struct {
	mu       sync.Mutex
	entries  map[string]*entry[R]
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	hooks    Hooks
	log      *logger.Logger

	loads    singleflight.Group
	sweeping bool
	closed   bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Cache.
type Option[R io.Closer] func(*Cache[R])

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval[R io.Closer](interval time.Duration) Option[R] {
	return func(c *Cache[R]) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithClock overrides time.Now.
func WithClock[R io.Closer](now func() time.Time) Option[R] {
	return func(c *Cache[R]) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHooks installs load and eviction callbacks.
func WithHooks[R io.Closer](hooks Hooks) Option[R] {
	return func(c *Cache[R]) {
		c.hooks = hooks
	}
}

// New creates a cache whose entries are evicted after timeout of inactivity.
// A timeout <= 0 disables eviction.
func New[R io.Closer](timeout time.Duration, log *logger.Logger, opts ...Option[R]) *Cache[R] {
	c := &Cache[R]{
		entries:  make(map[string]*entry[R]),
		timeout:  max(timeout, 0),
		interval: DefaultSweepInterval,
		now:      time.Now,
		log:      log,
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the instance for key and records the access. It does not take a lease.
func (c *Cache[R]) Get(key string) (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero R

		return zero, false
	}

	e.lastAccess = c.now()

	return e.instance, true
}

// GetOrCreate returns the instance for key, constructing it with factory if it is missing.
// Concurrent callers for the same missing key share one construction, which is not cancelled
// when the caller that started it gives up; each caller stops waiting when its own ctx is done.
// The returned release func must be called once the caller is done with the instance; until
// then the entry is not evicted and the instance is not closed.
func (c *Cache[R]) GetOrCreate(ctx context.Context, key string, factory Factory[R]) (R, func(), error) {
	var zero R

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()

			return zero, nil, ErrClosed
		}

		if e, ok := c.entries[key]; ok {
			release := c.leaseLocked(e)
			c.mu.Unlock()

			return e.instance, release, nil
		}
		c.mu.Unlock()

		loaded := c.loads.DoChan(key, func() (any, error) {
			return nil, c.load(context.WithoutCancel(ctx), key, factory)
		})

		select {
		case <-ctx.Done():
			return zero, nil, fmt.Errorf("stopped waiting for %q: %w", key, ctx.Err())
		case result := <-loaded:
			if result.Err != nil {
				return zero, nil, result.Err
			}
		}
		// Loop: the fresh entry is picked up under the lock. If it was cleared in the
		// meantime, the next iteration loads again.
	}
}

func (c *Cache[R]) load(ctx context.Context, key string, factory Factory[R]) error {
	c.mu.Lock()
	_, exists := c.entries[key]
	c.mu.Unlock()

	if exists {
		return nil
	}

	instance, err := factory(ctx)
	if c.hooks.OnLoad != nil {
		c.hooks.OnLoad(key, err)
	}

	if err != nil {
		return fmt.Errorf("failed to construct %q: %w", key, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.closeInstance(key, instance)

		return ErrClosed
	}

	timeout := c.timeout
	c.entries[key] = &entry[R]{
		instance:   instance,
		lastAccess: c.now(),
		timeout:    timeout,
		leases:     0,
		detached:   false,
	}
	c.startSweepLocked()
	c.mu.Unlock()

	if c.log != nil {
		c.log.Info("Cached resource '%s' loaded (idle timeout %s)", key, timeout)
	}

	return nil
}

func (c *Cache[R]) leaseLocked(e *entry[R]) func() {
	e.lastAccess = c.now()
	e.leases++

	var once sync.Once

	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.leases--
			e.lastAccess = c.now()
			closeNow := e.detached && e.leases == 0
			c.mu.Unlock()

			if closeNow {
				c.closeInstance("detached", e.instance)
			}
		})
	}
}

// Has reports whether a live instance is cached for key.
func (c *Cache[R]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]

	return ok
}

// Clear releases the instance for key, or every instance when key is empty.
func (c *Cache[R]) Clear(key string) {
	c.mu.Lock()

	var released []R

	for k, e := range c.entries {
		if key != "" && k != key {
			continue
		}

		delete(c.entries, k)

		if e.leases > 0 {
			e.detached = true

			continue
		}

		released = append(released, e.instance)
	}
	c.mu.Unlock()

	for _, instance := range released {
		c.closeInstance(key, instance)
	}

	runtime.GC()
}

// Status reports idle, timeout and remaining seconds per cached key.
func (c *Cache[R]) Status() map[string]EntryStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	status := make(map[string]EntryStatus, len(c.entries))

	for key, e := range c.entries {
		idle := int(now.Sub(e.lastAccess).Seconds())
		timeout := int(e.timeout.Seconds())
		status[key] = EntryStatus{
			IdleSeconds:      idle,
			TimeoutSeconds:   timeout,
			RemainingSeconds: max(0, timeout-idle),
			Leases:           e.leases,
		}
	}

	return status
}

// Timeout returns the idle timeout applied to new entries.
func (c *Cache[R]) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.timeout
}

// SetTimeout changes the idle timeout of the cache and of every cached entry.
// Negative values are treated as 0, which disables eviction.
func (c *Cache[R]) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timeout = max(timeout, 0)
	for _, e := range c.entries {
		e.timeout = c.timeout
	}
}

// Close stops the sweep and releases every cached instance.
func (c *Cache[R]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	close(c.stop)
	c.mu.Unlock()

	c.wg.Wait()
	c.Clear("")
}

func (c *Cache[R]) startSweepLocked() {
	if c.sweeping || c.closed {
		return
	}

	c.sweeping = true
	c.wg.Add(1)

	go c.sweepLoop()
}

func (c *Cache[R]) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sweep() {
				return
			}
		}
	}
}

// sweep evicts idle entries and reports whether the sweep should keep running.
func (c *Cache[R]) sweep() bool {
	c.mu.Lock()

	now := c.now()

	var (
		evictedKeys []string
		evicted     []R
		idleLimits  []time.Duration
	)

	for key, e := range c.entries {
		if e.timeout <= 0 || e.leases > 0 {
			continue
		}

		if now.Sub(e.lastAccess) > e.timeout {
			delete(c.entries, key)
			evictedKeys = append(evictedKeys, key)
			evicted = append(evicted, e.instance)
			idleLimits = append(idleLimits, e.timeout)
		}
	}

	keepRunning := len(c.entries) > 0
	if !keepRunning {
		c.sweeping = false
	}
	c.mu.Unlock()

	for i, instance := range evicted {
		if c.log != nil {
			c.log.System("Cached resource '%s' idle for longer than %s, releasing it", evictedKeys[i], idleLimits[i])
		}

		c.closeInstance(evictedKeys[i], instance)

		if c.hooks.OnEvict != nil {
			c.hooks.OnEvict(evictedKeys[i])
		}
	}

	if len(evicted) > 0 {
		runtime.GC()
	}

	return keepRunning
}

func (c *Cache[R]) closeInstance(key string, instance R) {
	err := instance.Close()
	if err != nil && c.log != nil {
		c.log.Warn("Failed to release cached resource '%s': %v", key, err)
	}
}
