// Package judge implements the single-model visual comparator (spec §4.5):
// given an original page image and a rendered candidate, call a vision
// model with a fixed rubric and parse its reply into a JudgeFeedback.
package judge

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"pdf2html-agent/internal/llmclient"
	"pdf2html-agent/internal/types"
)

const systemPrompt = `You compare an original scanned document page to a rendered HTML
reproduction of it. Score strictly on visual and textual fidelity. Respond
with a single strictly-valid JSON object (no markdown fences, no prose)
with exactly these keys: fidelity_score, layout_score, text_accuracy_score,
color_match_score, equation_score (integers 0-100), and critical_errors
(array of short imperative strings, each naming one defect and, where
possible, a fix). Optionally include preserved_correctly (array of strings
naming elements that are already correct).`

// reply is the wire shape a judge model returns (spec §6 judge reply
// contract): extra keys ignored, missing numeric keys default to 0.
type reply struct {
	FidelityScore      int      `json:"fidelity_score"`
	LayoutScore        int      `json:"layout_score"`
	TextAccuracyScore  int      `json:"text_accuracy_score"`
	ColorMatchScore    int      `json:"color_match_score"`
	EquationScore      int      `json:"equation_score"`
	CriticalErrors     []string `json:"critical_errors"`
	PreservedCorrectly []string `json:"preserved_correctly"`
}

// Comparer is the surface MultiJudge depends on; *Judge implements it, and
// tests substitute a fake (SPEC_FULL §10.4).
type Comparer interface {
	Compare(ctx context.Context, originalDataURI, renderedDataURI string) *types.JudgeFeedback
}

// Judge is one vision-model-backed comparator.
type Judge struct {
	client llmclient.Asker
	logger *zap.Logger
	label  string
}

// New constructs a Judge bound to a vision-model client.
func New(client llmclient.Asker, label string, logger *zap.Logger) *Judge {
	return &Judge{client: client, label: label, logger: logger}
}

// Compare scores a rendered candidate against the original page image.
// Never raises to the caller (spec §4.5): on parse failure it returns a
// minimal, zero-scored feedback naming the parse failure as a critical
// error.
func (j *Judge) Compare(ctx context.Context, originalDataURI, renderedDataURI string) *types.JudgeFeedback {
	images := []llmclient.ImagePart{
		{DataURI: originalDataURI},
		{DataURI: renderedDataURI},
	}
	raw, err := j.client.Ask(ctx, systemPrompt, "Image 1 is the original page. Image 2 is the rendered reproduction. Compare them.", images)
	if err != nil {
		j.logger.Warn("judge call failed", zap.String("judge", j.label), zap.Error(err))
		return zeroFeedback("judge call failed: " + err.Error())
	}

	var r reply
	trimmed := stripFences(raw)
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		j.logger.Warn("judge reply failed to parse", zap.String("judge", j.label), zap.Error(err))
		return zeroFeedback("judge reply could not be parsed as JSON: " + err.Error())
	}

	composite := types.Composite(r.TextAccuracyScore, r.LayoutScore, r.EquationScore, r.ColorMatchScore)
	return &types.JudgeFeedback{
		FidelityScore:      composite,
		LayoutScore:        r.LayoutScore,
		TextAccuracyScore:  r.TextAccuracyScore,
		ColorMatchScore:    r.ColorMatchScore,
		EquationScore:      r.EquationScore,
		CriticalErrors:     r.CriticalErrors,
		PreservedCorrectly: r.PreservedCorrectly,
		RawResponse:        raw,
	}
}

func zeroFeedback(reason string) *types.JudgeFeedback {
	return &types.JudgeFeedback{
		FidelityScore:  0,
		CriticalErrors: []string{reason},
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
