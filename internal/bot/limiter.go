package bot

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiter - по одному rate.Limiter на пользователя.
type limiter struct {
	mu    sync.Mutex
	r     rate.Limit
	burst int
	users map[string]*rate.Limiter
}

func newLimiter(r float64, burst int) *limiter {
	if r <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &limiter{
		r:     rate.Limit(r),
		burst: burst,
		users: make(map[string]*rate.Limiter),
	}
}

// allow на nil-лимитере всегда true.
func (l *limiter) allow(id string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.users[id]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.users[id] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
