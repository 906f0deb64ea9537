package api

import (
	"sync"
	"testing"
)

func TestConvertLimiterPerIPCap(t *testing.T) {
	l := newConvertLimiter(2)

	if !l.acquire("1.2.3.4") || !l.acquire("1.2.3.4") {
		t.Fatal("first two acquires should succeed")
	}
	if l.acquire("1.2.3.4") {
		t.Error("third acquire for same IP should fail")
	}
	if !l.acquire("5.6.7.8") {
		t.Error("acquire for different IP should succeed")
	}

	l.release("1.2.3.4")
	if !l.acquire("1.2.3.4") {
		t.Error("acquire after release should succeed")
	}
}

func TestConvertLimiterGlobalCap(t *testing.T) {
	l := newConvertLimiter(10)
	l.maxTotal = 3

	ips := []string{"a", "b", "c"}
	for _, ip := range ips {
		if !l.acquire(ip) {
			t.Fatalf("acquire(%q) should succeed under global cap", ip)
		}
	}
	if l.acquire("d") {
		t.Error("acquire beyond global cap should fail")
	}

	l.release("a")
	if !l.acquire("d") {
		t.Error("acquire after release should succeed")
	}
}

func TestConvertLimiterReleaseCleansUp(t *testing.T) {
	l := newConvertLimiter(5)

	l.acquire("1.2.3.4")
	l.release("1.2.3.4")

	if got := l.count("1.2.3.4"); got != 0 {
		t.Errorf("count after release = %d, want 0", got)
	}
	if _, exists := l.inflight["1.2.3.4"]; exists {
		t.Error("released IP should be removed from the map")
	}
}

func TestConvertLimiterConcurrent(t *testing.T) {
	l := newConvertLimiter(1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.acquire("shared") {
				l.release("shared")
			}
		}()
	}
	wg.Wait()

	if got := l.count("shared"); got != 0 {
		t.Errorf("count after concurrent churn = %d, want 0", got)
	}
	if l.total != 0 {
		t.Errorf("total after concurrent churn = %d, want 0", l.total)
	}
}
