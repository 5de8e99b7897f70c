package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	burst := 1

	interval := 10 * time.Millisecond
	lim := Every(interval)
	r := NewLimiter(burst, time.Hour, lim)
	defer r.Stop()

	tooshort := 1 * time.Millisecond

	client := "buyer@example.com"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterClientsAreIndependent(t *testing.T) {
	r := NewLimiter(1, time.Hour, Every(time.Hour))
	defer r.Stop()

	if !r.Check("a") {
		t.Fatal("first request of a should pass")
	}
	if r.Check("a") {
		t.Fatal("second request of a should be throttled")
	}
	if !r.Check("b") {
		t.Fatal("b must not share a's bucket")
	}
}

func TestLimiterSweep(t *testing.T) {
	r := NewLimiter(1, time.Minute, Every(time.Hour))
	defer r.Stop()

	r.Check("idle")
	r.sweep(time.Now().Add(2 * time.Minute))

	r.mu.Lock()
	_, ok := r.clients["idle"]
	r.mu.Unlock()
	if ok {
		t.Fatal("idle client should have been swept")
	}

	if !r.Check("idle") {
		t.Fatal("a swept client starts with a fresh bucket")
	}
}
