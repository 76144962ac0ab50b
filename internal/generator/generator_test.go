package generator

import (
	"strings"
	"testing"

	"pdf2html-agent/internal/types"
)

func TestStripFencesHTMLFence(t *testing.T) {
	in := "```html\n<html><body>hi</body></html>\n```"
	got := StripFences(in)
	if got != "<html><body>hi</body></html>" {
		t.Fatalf("unexpected strip result: %q", got)
	}
}

func TestStripFencesPlainFence(t *testing.T) {
	in := "```\n<html></html>\n```"
	got := StripFences(in)
	if got != "<html></html>" {
		t.Fatalf("unexpected strip result: %q", got)
	}
}

func TestStripFencesNoFence(t *testing.T) {
	in := "<html></html>"
	if got := StripFences(in); got != in {
		t.Fatalf("expected no-op, got %q", got)
	}
}

func TestInjectFiguresRoundTrip(t *testing.T) {
	figures := []types.Figure{
		{Index: 0, DataURI: "data:image/png;base64,AAA"},
		{Index: 1, DataURI: "data:image/png;base64,BBB"},
	}
	html := `<p>text</p><img data-figure-index="0" src="placeholder"><img data-figure-index="1" src="placeholder">`
	got := InjectFigures(html, figures)
	if !strings.Contains(got, `src="data:image/png;base64,AAA"`) {
		t.Fatalf("figure 0 not injected: %s", got)
	}
	if !strings.Contains(got, `src="data:image/png;base64,BBB"`) {
		t.Fatalf("figure 1 not injected: %s", got)
	}
}

func TestInjectFiguresMissingIndexGetsPlaceholder(t *testing.T) {
	html := `<img data-figure-index="5" src="placeholder">`
	got := InjectFigures(html, nil)
	if !strings.Contains(got, "missing figure 5") {
		t.Fatalf("expected missing-figure placeholder, got %s", got)
	}
}

func TestInjectFiguresEmptyFiguresIsNoOpWithoutPlaceholders(t *testing.T) {
	html := `<p>no figures here</p>`
	got := InjectFigures(html, nil)
	if got != html {
		t.Fatalf("expected no-op, got %s", got)
	}
}

func TestInjectFiguresInsertsSrcWhenAbsent(t *testing.T) {
	figures := []types.Figure{{Index: 0, DataURI: "data:image/png;base64,AAA"}}
	html := `<img data-figure-index="0">`
	got := InjectFigures(html, figures)
	if !strings.Contains(got, `src="data:image/png;base64,AAA"`) {
		t.Fatalf("expected src to be inserted, got %s", got)
	}
}

func TestBuildRefinePromptIncludesCriticalErrorsAndPreserved(t *testing.T) {
	feedback := &types.JudgeFeedback{
		CriticalErrors:     []string{"heading font too small"},
		PreservedCorrectly: []string{"figure placement"},
	}
	prompt := buildRefinePrompt("<html></html>", feedback, types.PromptAddendum{Text: "addendum"})
	if !strings.Contains(prompt, "heading font too small") {
		t.Fatalf("expected critical error in prompt: %s", prompt)
	}
	if !strings.Contains(prompt, "figure placement") {
		t.Fatalf("expected preserved element in prompt: %s", prompt)
	}
}
