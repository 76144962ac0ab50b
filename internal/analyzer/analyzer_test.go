package analyzer

import (
	"strings"
	"testing"

	"pdf2html-agent/internal/types"
)

func TestBuildPromptAddendumSingleColumnNoEquations(t *testing.T) {
	analysis := types.DocumentAnalysis{
		PrimaryLanguage: "en",
		TextDirection:   types.DirectionLTR,
		LayoutType:      types.LayoutSingleColumn,
		ColumnCount:     1,
		DocumentType:    "letter",
	}
	addendum := BuildPromptAddendum(analysis)
	if !strings.Contains(addendum.Text, `dir="ltr"`) {
		t.Fatalf("expected dir=ltr in addendum, got: %s", addendum.Text)
	}
	if !strings.Contains(addendum.Text, "single-column layout") {
		t.Fatalf("expected single-column instruction, got: %s", addendum.Text)
	}
	if strings.Contains(addendum.Text, "ASCII-art") {
		t.Fatalf("did not expect equation instructions when has_equations=false: %s", addendum.Text)
	}
}

func TestBuildPromptAddendumMultiColumnWithEquations(t *testing.T) {
	analysis := types.DocumentAnalysis{
		PrimaryLanguage:    "en",
		TextDirection:      types.DirectionLTR,
		LayoutType:         types.LayoutMultiColumn,
		ColumnCount:        2,
		HasEquations:       true,
		EquationComplexity: types.EquationComplex,
		DocumentType:       "academic",
	}
	addendum := BuildPromptAddendum(analysis)
	if !strings.Contains(addendum.Text, "2 columns") {
		t.Fatalf("expected column count in addendum, got: %s", addendum.Text)
	}
	if !strings.Contains(addendum.Text, "ASCII-art") {
		t.Fatalf("expected equation instruction, got: %s", addendum.Text)
	}
	if !strings.Contains(addendum.Text, "complex") {
		t.Fatalf("expected complex-equation guidance, got: %s", addendum.Text)
	}
}

func TestBuildPromptAddendumRTL(t *testing.T) {
	analysis := types.DocumentAnalysis{
		PrimaryLanguage: "ar",
		TextDirection:   types.DirectionRTL,
		LayoutType:      types.LayoutSingleColumn,
		DocumentType:    "letter",
	}
	addendum := BuildPromptAddendum(analysis)
	if !strings.Contains(addendum.Text, `dir="rtl"`) {
		t.Fatalf("expected dir=rtl in addendum, got: %s", addendum.Text)
	}
}

func TestApplyOverridesWinsOverAnalysis(t *testing.T) {
	analysis := types.DocumentAnalysis{PrimaryLanguage: "en", TextDirection: types.DirectionLTR}
	applyOverrides(&analysis, Overrides{Language: "fr", Direction: types.DirectionRTL})
	if analysis.PrimaryLanguage != "fr" || analysis.TextDirection != types.DirectionRTL {
		t.Fatalf("expected overrides to win, got %+v", analysis)
	}
}

func TestParseAnalysisStripsFences(t *testing.T) {
	reply := "```json\n{\"primary_language\":\"en\",\"text_direction\":\"ltr\",\"column_count\":1}\n```"
	analysis, ok := parseAnalysis(reply)
	if !ok {
		t.Fatal("expected parseAnalysis to succeed through fences")
	}
	if analysis.PrimaryLanguage != "en" {
		t.Fatalf("unexpected language: %s", analysis.PrimaryLanguage)
	}
}

func TestParseAnalysisFailsOnGarbage(t *testing.T) {
	if _, ok := parseAnalysis("not json at all"); ok {
		t.Fatal("expected parseAnalysis to report failure on unparseable reply")
	}
}
