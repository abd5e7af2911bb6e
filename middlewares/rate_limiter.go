package middlewares

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter -> sliding window per IP
type RateLimiter struct {
	rate     int
	interval time.Duration
	ips      map[string][]time.Time
	mu       sync.Mutex
	now      func() time.Time
}

func NewRateLimiter(rate int, interval int) *RateLimiter {
	return &RateLimiter{
		rate:     rate,
		interval: time.Duration(interval) * time.Second,
		ips:      make(map[string][]time.Time),
		now:      time.Now,
	}
}

// WithClock mengganti sumber waktu (test, clock server)
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		rl.mu.Lock()
		now := rl.now()
		cutoff := now.Add(-rl.interval)
		valid := rl.ips[ip][:0]
		for _, t := range rl.ips[ip] {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}

		if len(valid) >= rl.rate {
			rl.ips[ip] = valid
			retry := valid[0].Add(rl.interval).Sub(now)
			rl.mu.Unlock()
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "Too many requests",
			})
			return
		}

		rl.ips[ip] = append(valid, now)
		rl.mu.Unlock()
		c.Next()
	}
}

// Cleanup -> buang IP yang tidak aktif lagi, mengembalikan jumlah yang dihapus
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.interval)
	removed := 0
	for ip, times := range rl.ips {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.ips, ip)
			removed++
		}
	}
	return removed
}

// Tracked -> jumlah IP yang sedang dipantau
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.ips)
}

// StrictRateLimiter -> token bucket per IP untuk endpoint sensitif (minta / cek kode).
// Bucket yang sudah penuh kembali dan idle dibuang oleh Cleanup.
type StrictRateLimiter struct {
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*strictEntry
	mu       sync.Mutex
	now      func() time.Time
}

type strictEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewStrictRateLimiter(every time.Duration, burst int) *StrictRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &StrictRateLimiter{
		limit: rate.Every(every),
		burst: burst,
		// setelah every*burst tanpa request bucket sudah penuh lagi, sama dengan bucket baru
		idle:     every * time.Duration(burst),
		limiters: make(map[string]*strictEntry),
		now:      time.Now,
	}
}

// WithClock mengganti sumber waktu (test, clock server)
func (s *StrictRateLimiter) WithClock(now func() time.Time) *StrictRateLimiter {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *StrictRateLimiter) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.limiters[ip]
	if !ok {
		e = &strictEntry{lim: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[ip] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (s *StrictRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "Terlalu banyak percobaan, silakan tunggu beberapa saat",
			})
			return
		}
		c.Next()
	}
}

// Cleanup -> buang bucket IP yang idle, mengembalikan jumlah yang dihapus
func (s *StrictRateLimiter) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.idle)
	removed := 0
	for ip, e := range s.limiters {
		if !e.lastSeen.After(cutoff) {
			delete(s.limiters, ip)
			removed++
		}
	}
	return removed
}

// Tracked -> jumlah IP yang sedang dipantau
func (s *StrictRateLimiter) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
