package signal

import (
	"testing"
	"time"
)

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("s1") {
			t.Fatalf("attempt %d refused below limit", i+1)
		}
	}
	if rl.Allow("s1") {
		t.Fatal("attempt above limit allowed")
	}

	// Sessions are limited independently.
	if !rl.Allow("s2") {
		t.Fatal("fresh session refused")
	}
}

func TestJoinRateLimiterWindowSlides(t *testing.T) {
	rl := NewJoinRateLimiter(2, 20*time.Millisecond)

	if !rl.Allow("s1") || !rl.Allow("s1") {
		t.Fatal("refused below limit")
	}
	if rl.Allow("s1") {
		t.Fatal("allowed above limit")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("s1") {
		t.Fatal("refused after window expired")
	}
}

func TestJoinRateLimiterForget(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Minute)

	if !rl.Allow("s1") {
		t.Fatal("first attempt refused")
	}
	if rl.Allow("s1") {
		t.Fatal("second attempt allowed")
	}

	rl.Forget("s1")
	if !rl.Allow("s1") {
		t.Fatal("refused after history was dropped")
	}
}
