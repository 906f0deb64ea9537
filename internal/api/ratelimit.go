package api

import (
	"sync"
)

// convertLimiter tracks in-flight batch conversions per IP and globally.
// Batch conversion is the only CPU-heavy endpoint, so it gets its own
// concurrency cap instead of a server-wide one.
type convertLimiter struct {
	mu       sync.Mutex
	inflight map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newConvertLimiter(maxPerIP int) *convertLimiter {
	return &convertLimiter{
		inflight: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: 100, // Default global cap.
	}
}

// acquire attempts to register a new conversion for the given IP.
// Returns false if the IP or global limit has been reached.
func (l *convertLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return false
	}
	if l.inflight[ip] >= l.maxPerIP {
		return false
	}

	l.inflight[ip]++
	l.total++
	return true
}

// release decrements the in-flight count for the given IP.
func (l *convertLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inflight[ip]--
	l.total--
	if l.inflight[ip] <= 0 {
		delete(l.inflight, ip)
	}
}

// count returns the number of in-flight conversions for the given IP.
func (l *convertLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[ip]
}
