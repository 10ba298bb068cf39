package memory

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/costboard/domain/ratelimit"
)

type limiterShard struct {
	mu      sync.Mutex
	windows map[string]ratelimit.Window
}

// Limiter tracks per-caller request windows in sharded maps.
type Limiter struct {
	policy ratelimit.Policy
	shards []*limiterShard
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	Shards        int           // default: 32
	SweepInterval time.Duration // default: 5m
}

// NewLimiter creates a limiter enforcing policy. Close stops its sweeper.
func NewLimiter(policy ratelimit.Policy, cfg LimiterConfig) *Limiter {
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	l := &Limiter{
		policy: policy,
		shards: make([]*limiterShard, cfg.Shards),
		ticker: time.NewTicker(cfg.SweepInterval),
		done:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &limiterShard{windows: make(map[string]ratelimit.Window)}
	}

	go l.sweepLoop()
	return l
}

// Allow counts one request for key at now.
func (l *Limiter) Allow(key string, now time.Time) ratelimit.Decision {
	shard := l.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	d, w := ratelimit.Apply(shard.windows[key], l.policy, now)
	shard.windows[key] = w
	return d
}

// Sweep drops windows that closed before now.
func (l *Limiter) Sweep(now time.Time) {
	for _, shard := range l.shards {
		shard.mu.Lock()
		for key, w := range shard.windows {
			if w.Expired(now) {
				delete(shard.windows, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Len returns the number of tracked callers.
func (l *Limiter) Len() int {
	n := 0
	for _, shard := range l.shards {
		shard.mu.Lock()
		n += len(shard.windows)
		shard.mu.Unlock()
	}
	return n
}

// Close stops the background sweeper. Safe to call more than once.
func (l *Limiter) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.ticker.Stop()
	})
	return nil
}

func (l *Limiter) shard(key string) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

func (l *Limiter) sweepLoop() {
	for {
		select {
		case now := <-l.ticker.C:
			l.Sweep(now)
		case <-l.done:
			return
		}
	}
}
