package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitManager owns the per-client limiters and their cleanup loop.
type RateLimitManager struct {
	visitors     map[string]*visitor
	visitorsMu   sync.Mutex
	saveLimiters map[string]*visitor
	saveMu       sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewRateLimitManager(ctx context.Context) *RateLimitManager {
	managerCtx, cancel := context.WithCancel(ctx)

	m := &RateLimitManager{
		visitors:     make(map[string]*visitor),
		saveLimiters: make(map[string]*visitor),
		ctx:          managerCtx,
		cancel:       cancel,
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

func newLimiter(requestsPerWindow, windowSeconds int) *rate.Limiter {
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	limitPerSecond := float64(requestsPerWindow) / float64(windowSeconds)
	limit := rate.Limit(limitPerSecond)
	if limitPerSecond <= 0 {
		limit = rate.Inf
	}
	return rate.NewLimiter(limit, requestsPerWindow)
}

func lookup(mu *sync.Mutex, limiters map[string]*visitor, key string, requestsPerWindow, windowSeconds int) *rate.Limiter {
	if requestsPerWindow <= 0 {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()

	v, exists := limiters[key]
	if !exists {
		v = &visitor{limiter: newLimiter(requestsPerWindow, windowSeconds)}
		limiters[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// GetVisitor returns the general limiter of a client IP. It returns nil when
// limiting is disabled.
func (m *RateLimitManager) GetVisitor(ip string, requestsPerWindow, windowSeconds int) *rate.Limiter {
	return lookup(&m.visitorsMu, m.visitors, ip, requestsPerWindow, windowSeconds)
}

// GetSaveLimiter returns the limiter applied to form saves of one owner.
func (m *RateLimitManager) GetSaveLimiter(key string, perMinute int) *rate.Limiter {
	return lookup(&m.saveMu, m.saveLimiters, key, perMinute, 60)
}

func (m *RateLimitManager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(time.Now())
		}
	}
}

func (m *RateLimitManager) cleanup(now time.Time) {
	prune := func(mu *sync.Mutex, limiters map[string]*visitor, idle time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		for key, v := range limiters {
			if now.Sub(v.lastSeen) > idle {
				delete(limiters, key)
			}
		}
	}
	prune(&m.visitorsMu, m.visitors, 3*time.Minute)
	prune(&m.saveMu, m.saveLimiters, 10*time.Minute)
}

// Shutdown stops the cleanup goroutine and waits for it to finish
func (m *RateLimitManager) Shutdown() error {
	m.cancel()
	m.wg.Wait()
	return nil
}
