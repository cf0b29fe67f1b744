package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/any-hub/zfile/internal/metrics"
)

// Outcome 描述一次 Get 的结果来源。
type Outcome string

const (
	// OutcomeHit 表示直接命中 LRU。
	OutcomeHit Outcome = "hit"
	// OutcomeMiss 表示当前调用方触发了上游加载。
	OutcomeMiss Outcome = "miss"
	// OutcomeShared 表示复用了其他调用方正在进行的加载。
	OutcomeShared Outcome = "shared"
)

// Hit 返回结果是否来自缓存或共享加载（即当前调用没有触发上游请求）。
func (o Outcome) Hit() bool {
	return o == OutcomeHit || o == OutcomeShared
}

// LoadFunc 在缓存未命中时被调用；ctx 与发起方的取消解耦，只在全部等待方离开后取消。
type LoadFunc[V any] func(ctx context.Context) (V, error)

// ErrInvalidCapacity 表示构造缓存时容量非法。
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Memo 是带容量上限的 LRU 记忆化缓存，并保证同一 key 同时只有一次加载在进行。
// 错误结果不会被缓存；条目只会因容量淘汰或显式失效而移除。
type Memo[V any] struct {
	name     string
	capacity int
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries *lru.Cache[string, V]
	calls   map[string]*call[V]
	stats   Stats

	// removing 为 true 时淘汰回调来自 Invalidate/Purge，不计入容量淘汰。
	removing bool
}

// call 是某个 key 的在途加载，refs 记录仍在等待结果的调用方数量。
type call[V any] struct {
	done   chan struct{}
	val    V
	err    error
	refs   int
	cancel context.CancelFunc
}

// Stats 汇总 Memo 的累计计数，供诊断接口输出。
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Shared    uint64 `json:"shared"`
	Evictions uint64 `json:"evictions"`
	Abandoned uint64 `json:"abandoned"`
}

// Option 调整 Memo 的可选行为。
type Option func(*memoOptions)

type memoOptions struct {
	metrics *metrics.Metrics
}

// WithMetrics 将命中/未命中/淘汰事件同步到 Prometheus。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *memoOptions) {
		o.metrics = m
	}
}

// NewMemo 创建容量为 capacity 的记忆化缓存，name 用于日志与指标标签。
func NewMemo[V any](name string, capacity int, opts ...Option) (*Memo[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrInvalidCapacity)
	}
	var options memoOptions
	for _, opt := range opts {
		opt(&options)
	}

	m := &Memo[V]{
		name:     name,
		capacity: capacity,
		metrics:  options.metrics,
		calls:    make(map[string]*call[V]),
	}
	entries, err := lru.NewWithEvict[string, V](capacity, func(string, V) {
		// 回调发生在 Add/Remove/Purge 内部，此时 m.mu 已由调用方持有。
		if m.removing {
			return
		}
		m.stats.Evictions++
		m.metrics.CacheEvent(m.name, "evict")
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	m.entries = entries
	return m, nil
}

// Name 返回缓存名称。
func (m *Memo[V]) Name() string {
	return m.name
}

// Get 返回 key 对应的值：命中 LRU 直接返回；已有在途加载则等待并共享其结果；
// 否则由当前调用方发起 load。ctx 取消时调用方立即返回 ctx.Err()，在途加载只有在
// 没有其他等待方时才会被取消。
func (m *Memo[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, Outcome, error) {
	m.mu.Lock()
	if val, ok := m.entries.Get(key); ok {
		m.stats.Hits++
		m.mu.Unlock()
		m.metrics.CacheEvent(m.name, string(OutcomeHit))
		return val, OutcomeHit, nil
	}

	if c, ok := m.calls[key]; ok {
		c.refs++
		m.stats.Shared++
		m.mu.Unlock()
		m.metrics.CacheEvent(m.name, string(OutcomeShared))
		val, err := m.wait(ctx, key, c)
		return val, OutcomeShared, err
	}

	key = strings.Clone(key)
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call[V]{
		done:   make(chan struct{}),
		refs:   1,
		cancel: cancel,
	}
	m.calls[key] = c
	m.stats.Misses++
	m.mu.Unlock()
	m.metrics.CacheEvent(m.name, string(OutcomeMiss))

	go m.run(loadCtx, key, c, load)

	val, err := m.wait(ctx, key, c)
	return val, OutcomeMiss, err
}

func (m *Memo[V]) run(ctx context.Context, key string, c *call[V], load LoadFunc[V]) {
	defer c.cancel()

	val, err := m.safeLoad(ctx, load)

	m.mu.Lock()
	if m.calls[key] == c {
		delete(m.calls, key)
		if err == nil {
			m.entries.Add(key, val)
		}
	}
	c.val, c.err = val, err
	close(c.done)
	m.mu.Unlock()
}

// safeLoad 将 load 中的 panic 转为本次调用的错误，避免后台 goroutine 拖垮进程。
func (m *Memo[V]) safeLoad(ctx context.Context, load LoadFunc[V]) (val V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			val, err = zero, fmt.Errorf("%s: load panicked: %v", m.name, r)
		}
	}()
	return load(ctx)
}

func (m *Memo[V]) wait(ctx context.Context, key string, c *call[V]) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-c.done:
		// 加载恰好在取消的同时完成，结果仍然有效。
		return c.val, c.err
	default:
	}
	c.refs--
	if c.refs == 0 {
		m.stats.Abandoned++
		if m.calls[key] == c {
			delete(m.calls, key)
		}
		c.cancel()
	}
	var zero V
	return zero, ctx.Err()
}

// Invalidate 删除 key 的缓存值，返回是否确实存在。在途加载不受影响。
func (m *Memo[V]) Invalidate(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removing = true
	defer func() { m.removing = false }()
	return m.entries.Remove(key)
}

// Purge 清空全部缓存值。
func (m *Memo[V]) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removing = true
	defer func() { m.removing = false }()
	m.entries.Purge()
}

// Len 返回当前缓存条目数。
func (m *Memo[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Cap 返回容量上限。
func (m *Memo[V]) Cap() int {
	return m.capacity
}

// InFlight 返回当前仍在加载中的 key 数量。
func (m *Memo[V]) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Stats 返回累计计数的快照。
func (m *Memo[V]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
