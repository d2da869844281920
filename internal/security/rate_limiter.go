package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/pii-masker/internal/config"
)

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	config  config.RateLimitConfig
	clients map[string]*clientLimiter
	mu      sync.RWMutex
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}

	return r.getLimiter(clientIP).AllowN(r.now(), 1)
}

// Clients returns the number of tracked clients
func (r *RateLimiter) Clients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// getLimiter gets or creates the limiter for a client
func (r *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	now := r.now()

	r.mu.RLock()
	cl, exists := r.clients[clientIP]
	r.mu.RUnlock()

	if exists {
		r.mu.Lock()
		cl.lastSeen = now
		r.mu.Unlock()
		return cl.limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cl, exists := r.clients[clientIP]; exists {
		cl.lastSeen = now
		return cl.limiter
	}

	burst := r.config.Burst
	if burst <= 0 {
		burst = 1
	}

	cl = &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMin)/60.0), burst),
		lastSeen: now,
	}
	r.clients[clientIP] = cl
	return cl.limiter
}

// CleanupOldClients removes clients not seen within the idle timeout
func (r *RateLimiter) CleanupOldClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	idle := r.config.IdleTimeout
	if idle <= 0 {
		idle = time.Hour
	}
	cutoff := r.now().Add(-idle)

	removed := 0
	for ip, cl := range r.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine periodically removes idle clients until stop is closed
func (r *RateLimiter) StartCleanupRoutine(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.CleanupOldClients()
			case <-stop:
				return
			}
		}
	}()
}
