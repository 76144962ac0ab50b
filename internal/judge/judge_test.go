package judge

import "testing"

func TestZeroFeedbackIsZeroScored(t *testing.T) {
	fb := zeroFeedback("boom")
	if fb.FidelityScore != 0 {
		t.Fatalf("expected zero fidelity score, got %d", fb.FidelityScore)
	}
	if len(fb.CriticalErrors) != 1 || fb.CriticalErrors[0] != "boom" {
		t.Fatalf("expected single critical error naming the failure, got %v", fb.CriticalErrors)
	}
}

func TestStripFencesJSONFence(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	if got := stripFences(in); got != `{"a":1}` {
		t.Fatalf("unexpected strip result: %q", got)
	}
}
