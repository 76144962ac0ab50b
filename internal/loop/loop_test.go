package loop

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"pdf2html-agent/internal/multijudge"
	"pdf2html-agent/internal/types"
)

func TestDecideAcceptRequiresTargetAndGate(t *testing.T) {
	cases := []struct {
		name   string
		score  int
		gate   multijudge.Gate
		target int
		want   bool
	}{
		{"below target", 80, multijudge.GateAccept, 85, false},
		{"meets target, gate accepts", 85, multijudge.GateAccept, 85, true},
		{"meets target, gate rejects", 90, multijudge.GateReject, 85, false},
		{"meets target, needs refinement", 90, multijudge.GateNeedsRefinement, 85, false},
		{"target zero always accepts", 0, multijudge.GateAccept, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fb := &types.JudgeFeedback{FidelityScore: c.score}
			got := decideAccept(fb, c.gate, c.target)
			if got != c.want {
				t.Fatalf("decideAccept(score=%d, gate=%s, target=%d) = %v, want %v", c.score, c.gate, c.target, got, c.want)
			}
		})
	}
}

func TestCommitPromotesChosenIterationToFinalHTML(t *testing.T) {
	dir := t.TempDir()
	iter1 := filepath.Join(dir, "iteration_01.html")
	iter2 := filepath.Join(dir, "iteration_02.html")
	os.WriteFile(iter1, []byte("<html>one</html>"), 0o644)
	os.WriteFile(iter2, []byte("<html>two</html>"), 0o644)

	iterations := []types.IterationRecord{
		{IterationNumber: 1, HTMLPath: iter1},
		{IterationNumber: 2, HTMLPath: iter2},
	}

	result := commit(dir, 0, iterations, 2, 91, true)

	finalData, err := os.ReadFile(filepath.Join(dir, "final.html"))
	if err != nil {
		t.Fatalf("final.html not written: %v", err)
	}
	if string(finalData) != "<html>two</html>" {
		t.Fatalf("expected final.html to match iteration 2, got %q", finalData)
	}
	if result.FinalScore != 91 || !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}

	var persisted types.PageResult
	raw, err := os.ReadFile(filepath.Join(dir, "page_result.json"))
	if err != nil {
		t.Fatalf("page_result.json not written: %v", err)
	}
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("page_result.json did not parse: %v", err)
	}
	if persisted.FinalScore != 91 {
		t.Fatalf("persisted result score mismatch: %+v", persisted)
	}
}

func TestLoadExistingResultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	original := types.PageResult{
		PageIndex:     4,
		Success:       true,
		FinalScore:    88,
		IterationsRun: 2,
		FinalHTMLPath: filepath.Join(dir, "final.html"),
	}
	persistPageResult(dir, original)

	loaded, err := loadExistingResult(dir, 4)
	if err != nil {
		t.Fatalf("loadExistingResult returned error: %v", err)
	}
	if loaded.FinalScore != 88 || loaded.IterationsRun != 2 || !loaded.Success {
		t.Fatalf("round-tripped result mismatch: %+v", loaded)
	}
}

func TestLoadExistingResultErrorsWithoutPriorRun(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadExistingResult(dir, 0); err == nil {
		t.Fatal("expected an error when page_result.json is absent")
	}
}

func TestSummarizeAggregatesPassRateAndAverages(t *testing.T) {
	results := []types.PageResult{
		{Success: true, FinalScore: 90, IterationsRun: 1},
		{Success: false, FinalScore: 60, IterationsRun: 5},
	}
	summary := summarize(results)

	if summary.Pages != 2 || summary.Passed != 1 {
		t.Fatalf("unexpected pass accounting: %+v", summary)
	}
	if summary.AverageScore != 75 {
		t.Fatalf("expected average score 75, got %v", summary.AverageScore)
	}
	if summary.AverageIterations != 3 {
		t.Fatalf("expected average iterations 3, got %v", summary.AverageIterations)
	}
}

func TestDataURIForFileUsesExistingBase64(t *testing.T) {
	page := types.PageAssets{ImageBase64: "Zm9v"}
	got := dataURIForFile(page)
	want := "data:image/png;base64,Zm9v"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDataURIForRenderedFileDegradesOnMissingFile(t *testing.T) {
	got := dataURIForRenderedFile("/nonexistent/path.png")
	if got != "data:image/png;base64," {
		t.Fatalf("expected empty-image degrade, got %q", got)
	}
}
