package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	f := NewFake(time.Unix(100, 0))
	start := f.Now()

	f.Advance(30 * time.Second)
	if got := f.Now().Sub(start); got != 30*time.Second {
		t.Fatalf("expected 30s elapsed, got %v", got)
	}
}

func TestFakeZeroValue(t *testing.T) {
	var f Fake
	if !f.Now().Equal(time.Unix(0, 0)) {
		t.Fatalf("zero Fake should start at the epoch, got %v", f.Now())
	}
	f.Advance(time.Second)
	if !f.Now().Equal(time.Unix(1, 0)) {
		t.Fatalf("expected epoch+1s, got %v", f.Now())
	}
}
