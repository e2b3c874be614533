package contacts

import "testing"

func TestIsTerminal(t *testing.T) {
	terminal := []Status{
		StatusCompleted, StatusFailed, StatusHangup, StatusBusy,
		StatusNoAnswer, StatusSwitchedOff, StatusCancelled,
	}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %q terminal", s)
		}
	}

	nonTerminal := []Status{
		StatusNotCalled, StatusInitiated, StatusInProgress,
		StatusRinging, StatusNotConnect,
	}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Fatalf("expected %q non-terminal", s)
		}
	}
}

func TestParseStatus_NormalizesProviderVariants(t *testing.T) {
	cases := map[string]Status{
		"completed":    StatusCompleted,
		"Completed":    StatusCompleted,
		"no_answer":    StatusNoAnswer,
		"No Answer":    StatusNoAnswer,
		"switched-off": StatusSwitchedOff,
		"canceled":     StatusCancelled,
		"in_progress":  StatusInProgress,
		"  Busy  ":     StatusBusy,
		"hang up":      StatusHangup,
		"not connected": StatusNotConnect,
	}
	for raw, want := range cases {
		got, ok := ParseStatus(raw)
		if !ok {
			t.Fatalf("ParseStatus(%q) not recognized", raw)
		}
		if got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", raw, got, want)
		}
	}

	if _, ok := ParseStatus("voicemail"); ok {
		t.Fatalf("expected unknown status to be rejected")
	}
}

func TestStatusValid_CoversClosedSet(t *testing.T) {
	if Status("Voicemail").Valid() {
		t.Fatalf("expected unknown literal invalid")
	}
	if !StatusNotConnect.Valid() {
		t.Fatalf("expected Not Connect valid")
	}
}
