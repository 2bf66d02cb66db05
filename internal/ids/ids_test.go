package ids

import (
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 {
		t.Fatalf("unexpected id length: %d", len(a))
	}
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	id := NewAt(at)
	got, ok := Time(id)
	if !ok {
		t.Fatalf("Time(%q) failed", id)
	}
	if !got.Equal(at) {
		t.Fatalf("got %v, want %v", got, at)
	}
	if _, ok := Time("not-an-id"); ok {
		t.Fatal("expected parse failure")
	}
}
