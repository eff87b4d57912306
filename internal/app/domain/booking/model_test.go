package booking

import (
	"testing"
	"time"
)

func d(offset int) time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"identical", d(0), d(3), d(0), d(3), true},
		{"a contains b", d(0), d(10), d(2), d(5), true},
		{"b contains a", d(2), d(5), d(0), d(10), true},
		{"partial head", d(0), d(3), d(2), d(5), true},
		{"partial tail", d(2), d(5), d(0), d(3), true},
		{"a ends at b start", d(0), d(3), d(3), d(5), false},
		{"b ends at a start", d(3), d(5), d(0), d(3), false},
		{"disjoint", d(0), d(2), d(5), d(7), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
			// Overlap is symmetric.
			if got := Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd); got != tt.want {
				t.Fatalf("Overlaps (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlocking(t *testing.T) {
	blocking := map[Status]bool{
		StatusPending:   true,
		StatusConfirmed: true,
		StatusCancelled: false,
		StatusCompleted: false,
	}
	for status, want := range blocking {
		if got := (Booking{Status: status}).Blocking(); got != want {
			t.Fatalf("Blocking(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusPending, StatusCompleted}:   false,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusConfirmed, StatusPending}:   false,
		{StatusCancelled, StatusConfirmed}: false,
		{StatusCancelled, StatusPending}:   false,
		{StatusCompleted, StatusCancelled}: false,
	}
	for pair, want := range allowed {
		if got := CanTransition(pair[0], pair[1]); got != want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", pair[0], pair[1], got, want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if Status("shipped").Valid() {
		t.Fatal("unknown status should be invalid")
	}
}
