// Package analyzer infers a document-wide structural profile from a small
// sample of rasterized pages, and deterministically derives the prompt
// addendum that conditions every Generator call (spec §4.2).
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pdf2html-agent/internal/llmclient"
	"pdf2html-agent/internal/types"
)

const systemPrompt = `You are a document layout analyst. You will be shown sample pages from a
single PDF document. Respond with a single strictly-valid JSON object
(no markdown fences, no prose) with exactly these keys:
primary_language (string), text_direction ("ltr"|"rtl"|"auto"),
mixed_directions (bool), has_equations (bool),
equation_complexity ("none"|"simple"|"complex"), has_tables (bool),
has_figures (bool), has_code_blocks (bool),
layout_type ("single-column"|"multi-column"|"mixed"), column_count (int),
has_headers (bool), has_footers (bool), has_footnotes (bool),
font_families (array of "serif"|"sans-serif"|"monospace"|"script"),
has_bold (bool), has_italic (bool), has_underline (bool),
document_type (string).`

// Overrides are explicit user-supplied values that win over the model's
// inference (spec §4.2 override policy).
type Overrides struct {
	Language  string
	Direction types.TextDirection
}

// Analyzer produces one DocumentAnalysis per document.
type Analyzer struct {
	client llmclient.Asker
	logger *zap.Logger
}

// New constructs an Analyzer bound to a vision-model client.
func New(client llmclient.Asker, logger *zap.Logger) *Analyzer {
	return &Analyzer{client: client, logger: logger}
}

// Analyze samples up to len(pages) page images (the caller pre-selects the
// sample, per spec §4.2's "up to K=3 images") and returns the inferred,
// override-applied, normalized DocumentAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, pages []types.PageAssets, overrides Overrides) types.DocumentAnalysis {
	images := make([]llmclient.ImagePart, 0, len(pages))
	for _, p := range pages {
		images = append(images, llmclient.ImagePart{DataURI: "data:image/png;base64," + p.ImageBase64})
	}

	reply, err := a.client.Ask(ctx, systemPrompt, "Analyze these sample pages.", images)
	if err != nil {
		a.logger.Warn("analyzer model call failed, using conservative default", zap.Error(err))
		analysis := types.DefaultDocumentAnalysis()
		applyOverrides(&analysis, overrides)
		return analysis
	}

	analysis, ok := parseAnalysis(reply)
	if !ok {
		a.logger.Warn("analyzer reply failed to parse, using conservative default")
		analysis = types.DefaultDocumentAnalysis()
	}
	applyOverrides(&analysis, overrides)
	analysis.Normalize()
	return analysis
}

func parseAnalysis(reply string) (types.DocumentAnalysis, bool) {
	trimmed := stripFences(reply)
	var analysis types.DocumentAnalysis
	if err := json.Unmarshal([]byte(trimmed), &analysis); err != nil {
		return types.DocumentAnalysis{}, false
	}
	return analysis, true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func applyOverrides(analysis *types.DocumentAnalysis, overrides Overrides) {
	if overrides.Language != "" {
		analysis.PrimaryLanguage = overrides.Language
	}
	if overrides.Direction != "" {
		analysis.TextDirection = overrides.Direction
	}
}

// BuildPromptAddendum deterministically derives the generator's prompt
// addendum from a DocumentAnalysis (spec §4.2: "this function is pure and
// testable independent of the model"). Table-driven by design (Design Note
// 9's "dynamically-shaped prompts": build by composition, not hard-coded
// document-type branches).
func BuildPromptAddendum(analysis types.DocumentAnalysis) types.PromptAddendum {
	var b strings.Builder

	fmt.Fprintf(&b, "Document profile: %s content, document type %q.\n", analysis.PrimaryLanguage, analysis.DocumentType)

	dir := analysis.TextDirection
	if dir == "" {
		dir = types.DirectionLTR
	}
	fmt.Fprintf(&b, "Set dir=%q and lang=%q on the <html> element.\n", dir, analysis.PrimaryLanguage)
	if analysis.MixedDirections {
		b.WriteString("The document mixes text directions; apply dir attributes at the block level where direction changes.\n")
	}

	switch analysis.LayoutType {
	case types.LayoutMultiColumn:
		fmt.Fprintf(&b, "Use a CSS grid or multi-column layout with %d columns.\n", analysis.ColumnCount)
	case types.LayoutMixed:
		b.WriteString("Layout mixes single- and multi-column regions; use CSS grid areas to express both.\n")
	default:
		b.WriteString("Use a single-column layout.\n")
	}

	if len(analysis.FontFamilies) > 0 {
		classes := make([]string, 0, len(analysis.FontFamilies))
		for _, f := range analysis.FontFamilies {
			classes = append(classes, string(f))
		}
		fmt.Fprintf(&b, "Required font stacks: %s.\n", strings.Join(classes, ", "))
	}
	if analysis.HasBold {
		b.WriteString("Preserve bold emphasis where present in the source.\n")
	}
	if analysis.HasItalic {
		b.WriteString("Preserve italic emphasis where present in the source.\n")
	}
	if analysis.HasUnderline {
		b.WriteString("Preserve underline decoration where present in the source.\n")
	}

	if analysis.HasEquations {
		b.WriteString("Render all mathematics with a typesetting library: inline math as \\(...\\), block math as $$...$$. Never emit ASCII-art approximations such as x^2 or a/b for real equations.\n")
		switch analysis.EquationComplexity {
		case types.EquationComplex:
			b.WriteString("Equations are complex (multi-line, matrices, or heavy symbol use); allocate generous vertical space and do not truncate.\n")
		case types.EquationSimple:
			b.WriteString("Equations are simple inline expressions.\n")
		}
	}

	if analysis.HasTables {
		b.WriteString("Render tables as semantic <table> markup, not as positioned text.\n")
	}
	if analysis.HasFigures {
		b.WriteString("Each figure is an <img> element with a stable data-figure-index attribute; do not invent figures that are not present.\n")
	}
	if analysis.HasCodeBlocks {
		b.WriteString("Render code blocks in a monospace <pre><code> element, preserving whitespace.\n")
	}
	if analysis.HasHeaders {
		b.WriteString("Reproduce the running header text at the top of the page.\n")
	}
	if analysis.HasFooters {
		b.WriteString("Reproduce the running footer text at the bottom of the page.\n")
	}
	if analysis.HasFootnotes {
		b.WriteString("Render footnotes at the bottom of the page with their reference markers.\n")
	}

	return types.PromptAddendum{Text: strings.TrimSpace(b.String())}
}
