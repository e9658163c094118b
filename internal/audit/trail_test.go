package audit

import (
	"fmt"
	"strings"
	"testing"
)

func TestAppendAndOrder(t *testing.T) {
	tr := NewTrail(0)
	for i := 0; i < 3; i++ {
		tr.Append(Entry{Task: "t", Action: fmt.Sprintf("a%d", i)})
	}

	got := tr.Entries()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, e := range got {
		if e.Action != fmt.Sprintf("a%d", i) {
			t.Errorf("entry %d action = %q", i, e.Action)
		}
	}
}

func TestCapTrimsOldest(t *testing.T) {
	tr := NewTrail(5)
	for i := 0; i < 8; i++ {
		tr.Append(Entry{Action: fmt.Sprintf("a%d", i)})
	}

	got := tr.Entries()
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	if got[0].Action != "a3" || got[4].Action != "a7" {
		t.Errorf("oldest entries not trimmed: first=%q last=%q", got[0].Action, got[4].Action)
	}
}

func TestObservationTruncated(t *testing.T) {
	tr := NewTrail(0)
	long := strings.Repeat("x", ObservationLimit+100)

	stored := tr.Append(Entry{Observation: long})
	if !strings.HasSuffix(stored.Observation, "…(truncated)") {
		t.Errorf("observation not marked truncated: %q", stored.Observation[len(stored.Observation)-30:])
	}
	if len(stored.Observation) >= len(long) {
		t.Errorf("observation not shortened")
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	tr := NewTrail(0)
	tr.Append(Entry{Action: "original"})

	got := tr.Entries()
	got[0].Action = "mutated"

	if tr.Entries()[0].Action != "original" {
		t.Error("Entries exposed internal storage")
	}
}

func TestRestore(t *testing.T) {
	tr := NewTrail(3)
	tr.Restore([]Entry{{Action: "a"}, {Action: "b"}, {Action: "c"}, {Action: "d"}})

	got := tr.Entries()
	if len(got) != 3 || got[0].Action != "b" {
		t.Errorf("restore did not trim oldest: %+v", got)
	}
}

func TestTruncateShortStringUntouched(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("got %q", got)
	}
}
