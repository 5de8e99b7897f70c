package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client id and forgets clients idle for
// longer than Expiry.
type Limiter struct {
	Expiry   time.Duration
	Burst    int
	LimitRPS float64
	clients  map[string]*clientLimiter
	mu       sync.Mutex
	done     chan struct{}
	stop     sync.Once
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewLimiter(burst int, expiry time.Duration, limitRPS float64) *Limiter {
	lm := &Limiter{
		Expiry:   expiry,
		LimitRPS: limitRPS,
		Burst:    burst,
		clients:  make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}
	go lm.refresh(time.Minute)
	return lm
}

func (l *Limiter) Check(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[id]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.LimitRPS), l.Burst)}
		l.clients[id] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter.Allow()
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	l.stop.Do(func() { close(l.done) })
}

func (l *Limiter) refresh(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.sweep(time.Now())
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, v := range l.clients {
		if now.Sub(v.lastAccess) > l.Expiry {
			delete(l.clients, id)
		}
	}
}

func Every(interval time.Duration) float64 {
	return float64(rate.Every(interval))
}
