package models

import "testing"

func TestBuildSubmissionKey_Deterministic(t *testing.T) {
	a := BuildSubmissionKey("experian", "v1", "ll_1", "tn_1", "2024-03")
	b := BuildSubmissionKey("EXPERIAN", "v1", " ll_1 ", "tn_1", "2024-03")
	if a != b {
		t.Fatalf("keys differ for equivalent inputs: %s vs %s", a, b)
	}
	if a != "experian|v1|ll_1|tn_1|2024-03" {
		t.Fatalf("unexpected key: %s", a)
	}
}

func TestBuildSubmissionKey_DistinguishesComponents(t *testing.T) {
	base := BuildSubmissionKey("mock", "v1", "ll_1", "tn_1", "2024-03")
	variants := []string{
		BuildSubmissionKey("experian", "v1", "ll_1", "tn_1", "2024-03"),
		BuildSubmissionKey("mock", "v2", "ll_1", "tn_1", "2024-03"),
		BuildSubmissionKey("mock", "v1", "ll_2", "tn_1", "2024-03"),
		BuildSubmissionKey("mock", "v1", "ll_1", "tn_2", "2024-03"),
		BuildSubmissionKey("mock", "v1", "ll_1", "tn_1", "2024-04"),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collided with base key %s", i, base)
		}
	}
}

func TestIsTerminalSubmissionStatus(t *testing.T) {
	terminal := []SubmissionStatus{
		SubmissionStatusAccepted,
		SubmissionStatusRejected,
		SubmissionStatusFailedFinal,
	}
	for _, s := range terminal {
		if !IsTerminalSubmissionStatus(s) {
			t.Fatalf("%s should be terminal", s)
		}
	}

	nonTerminal := []SubmissionStatus{
		SubmissionStatusQueued,
		SubmissionStatusProcessing,
		SubmissionStatusFailedRetryable,
	}
	for _, s := range nonTerminal {
		if IsTerminalSubmissionStatus(s) {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
