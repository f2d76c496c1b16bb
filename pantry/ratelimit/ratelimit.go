// pantry/ratelimit/ratelimit.go
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dalemusser/schoolctx/pantry/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Limiter is a token bucket refilled at rate tokens per second up to burst.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

// New returns a full bucket: burst requests pass at once, then rate per
// second.
func New(rate float64, burst int) *Limiter {
	return &Limiter{rate: rate, burst: float64(burst), tokens: float64(burst), last: time.Now()}
}

// Reserve takes one token if available. Otherwise it reports how long
// until one will be.
func (l *Limiter) Reserve() (ok bool, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens = math.Min(l.burst, l.tokens+now.Sub(l.last).Seconds()*l.rate)
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Hour
	}
	return false, time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

// Allow is Reserve without the wait.
func (l *Limiter) Allow() bool {
	ok, _ := l.Reserve()
	return ok
}

// KeyLimiter keeps one Limiter per key. Idle keys are dropped after ttl
// and at most size keys are tracked.
type KeyLimiter struct {
	mu    sync.Mutex
	rate  float64
	burst int
	keys  *expirable.LRU[string, *Limiter]
}

// NewKeyLimiter gives every key its own bucket of rate and burst. size
// defaults to 10000 keys and ttl to one hour.
func NewKeyLimiter(rate float64, burst, size int, ttl time.Duration) *KeyLimiter {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &KeyLimiter{rate: rate, burst: burst, keys: expirable.NewLRU[string, *Limiter](size, nil, ttl)}
}

func (kl *KeyLimiter) limiter(key string) *Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	l, ok := kl.keys.Get(key)
	if !ok {
		l = New(kl.rate, kl.burst)
	}
	// re-adding refreshes the idle timer
	kl.keys.Add(key, l)
	return l
}

// Reserve takes a token from key's bucket, creating it full on first use.
func (kl *KeyLimiter) Reserve(key string) (bool, time.Duration) {
	return kl.limiter(key).Reserve()
}

// Allow is Reserve without the wait.
func (kl *KeyLimiter) Allow(key string) bool {
	ok, _ := kl.Reserve(key)
	return ok
}

// Len counts tracked keys.
func (kl *KeyLimiter) Len() int { return kl.keys.Len() }

// KeyFunc picks the bucket for a request.
type KeyFunc func(r *http.Request) string

// RemoteAddrKey uses the client address. Run chi's RealIP first when
// behind a proxy.
func RemoteAddrKey(r *http.Request) string { return r.RemoteAddr }

// Middleware answers 429 with Retry-After once key's bucket is empty.
func Middleware(kl *KeyLimiter, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = RemoteAddrKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := kl.Reserve(key(r))
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				errors.Write(w, errors.New(errors.CodeRateLimited, "too many requests; try again shortly", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
