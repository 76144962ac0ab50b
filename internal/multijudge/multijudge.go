// Package multijudge orchestrates cross-model judging, an equation
// specialist, and a terminal verification pass into a single combined
// JudgeFeedback (spec §4.6).
package multijudge

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pdf2html-agent/internal/judge"
	"pdf2html-agent/internal/llmclient"
	"pdf2html-agent/internal/types"
)

// equationCapScore is the ceiling applied to equation_score when the
// specialist detects ASCII-art math in the rendered page (spec §4.6 step 3).
const equationCapScore = 40

// consensusDisagreementThreshold is the composite delta above which judges
// are flagged as disagreeing (spec §4.6 consensus check).
const consensusDisagreementThreshold = 15

// Gate is the verification gate's verdict (spec §4.6 step 4, Glossary).
type Gate string

const (
	GateAccept          Gate = "accept"
	GateReject          Gate = "reject"
	GateNeedsRefinement Gate = "needs_refinement"
)

// Config toggles each of MultiJudge's four sub-operations.
type Config struct {
	EnableCrossJudge         bool
	EnableEquationSpecialist bool
	EnableVerificationGate   bool
	WeightA                  float64
	WeightB                  float64
	TargetScore              int
}

// MultiJudge composes judge A, an optional judge B, an optional equation
// specialist, and an optional verification gate.
type MultiJudge struct {
	judgeA             judge.Comparer
	judgeB             judge.Comparer
	equationSpecialist llmclient.Asker
	verificationGate   llmclient.Asker
	cfg                Config
	logger             *zap.Logger
}

// New constructs a MultiJudge. judgeB, equationSpecialist, and
// verificationGate may be nil when their respective config flags are false.
func New(judgeA judge.Comparer, judgeB judge.Comparer, equationSpecialist llmclient.Asker, verificationGate llmclient.Asker, cfg Config, logger *zap.Logger) *MultiJudge {
	return &MultiJudge{
		judgeA:             judgeA,
		judgeB:             judgeB,
		equationSpecialist: equationSpecialist,
		verificationGate:   verificationGate,
		cfg:                cfg,
		logger:             logger,
	}
}

// Evaluate runs the full MultiJudge pipeline against one rendered
// candidate and returns the combined feedback.
func (mj *MultiJudge) Evaluate(ctx context.Context, analysis types.DocumentAnalysis, originalDataURI, renderedDataURI string) (*types.JudgeFeedback, Gate) {
	a, b := mj.scoreCrossModel(ctx, originalDataURI, renderedDataURI)

	combined := mj.combine(a, b)

	if mj.cfg.EnableEquationSpecialist && analysis.HasEquations {
		mj.applyEquationSpecialist(ctx, combined, renderedDataURI)
	}

	gate := GateAccept
	if combined.FidelityScore >= mj.cfg.TargetScore && mj.cfg.EnableVerificationGate {
		gate = mj.runVerificationGate(ctx, originalDataURI, renderedDataURI)
		if gate != GateAccept {
			combined.VerificationGateFailed = true
		}
	}

	return combined, gate
}

// scoreCrossModel runs judge A and (if enabled) judge B concurrently
// (spec §4.6 step 1, spec §5: "the two cross-model judge calls run
// concurrently"). Grounded in the widely-used golang.org/x/sync/errgroup
// idiom for a bounded two-call join-then-continue, generalizing the
// teacher's raw sync.WaitGroup fan-out in internal/pdf/batch_translator.go.
func (mj *MultiJudge) scoreCrossModel(ctx context.Context, originalDataURI, renderedDataURI string) (a, b *types.JudgeFeedback) {
	if !mj.cfg.EnableCrossJudge || mj.judgeB == nil {
		a = mj.judgeA.Compare(ctx, originalDataURI, renderedDataURI)
		return a, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a = mj.judgeA.Compare(gctx, originalDataURI, renderedDataURI)
		return nil
	})
	g.Go(func() error {
		b = mj.judgeB.Compare(gctx, originalDataURI, renderedDataURI)
		return nil
	})
	_ = g.Wait() // judge.Compare never returns an error to its caller (spec §4.5)
	return a, b
}

// combine implements spec §4.6 step 2 (weighted combination) and the
// consensus check: composite subscores are the weighted blend of A and B
// (or A alone when cross-judging is off), critical_errors are the
// deduplicated union, and judges_disagree is set when |a-b| > 15 on the
// composite.
func (mj *MultiJudge) combine(a, b *types.JudgeFeedback) *types.JudgeFeedback {
	if b == nil {
		return &types.JudgeFeedback{
			FidelityScore:      a.FidelityScore,
			LayoutScore:        a.LayoutScore,
			TextAccuracyScore:  a.TextAccuracyScore,
			ColorMatchScore:    a.ColorMatchScore,
			EquationScore:      a.EquationScore,
			CriticalErrors:     dedupe(a.CriticalErrors),
			PreservedCorrectly: dedupe(a.PreservedCorrectly),
			RawResponse:        a.RawResponse,
		}
	}

	wA, wB := mj.cfg.WeightA, mj.cfg.WeightB
	layout := weighted(wA, wB, a.LayoutScore, b.LayoutScore)
	textAcc := weighted(wA, wB, a.TextAccuracyScore, b.TextAccuracyScore)
	color := weighted(wA, wB, a.ColorMatchScore, b.ColorMatchScore)
	equation := weighted(wA, wB, a.EquationScore, b.EquationScore)

	combined := &types.JudgeFeedback{
		FidelityScore:      types.Composite(textAcc, layout, equation, color),
		LayoutScore:        layout,
		TextAccuracyScore:  textAcc,
		ColorMatchScore:    color,
		EquationScore:      equation,
		CriticalErrors:     dedupe(append(append([]string{}, a.CriticalErrors...), b.CriticalErrors...)),
		PreservedCorrectly: dedupe(append(append([]string{}, a.PreservedCorrectly...), b.PreservedCorrectly...)),
		RawResponse:        a.RawResponse + "\n---\n" + b.RawResponse,
	}

	if math.Abs(float64(a.FidelityScore-b.FidelityScore)) > consensusDisagreementThreshold {
		combined.JudgesDisagree = true
		mj.logger.Warn("judges_disagree",
			zap.Int("composite_a", a.FidelityScore),
			zap.Int("composite_b", b.FidelityScore))
	}

	return combined
}

func weighted(wA, wB float64, a, b int) int {
	v := wA*float64(a) + wB*float64(b)
	return int(v + 0.5)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

const equationSpecialistPrompt = `You are a mathematics typesetting specialist. Look only at the rendered
page image. Determine whether its mathematical expressions are properly
typeset (using a real math-rendering library) or whether they are
"ASCII-art" approximations: plain text patterns like x^2, a/b, sqrt(x), or
Greek letter names spelled out instead of rendered symbols. Respond with a
single strictly-valid JSON object (no markdown fences, no prose):
{"ascii_art_detected": bool, "explanation": string}.`

type equationSpecialistReply struct {
	ASCIIArtDetected bool   `json:"ascii_art_detected"`
	Explanation      string `json:"explanation"`
}

// applyEquationSpecialist implements spec §4.6 step 3: a constrained
// variant that may only cap equation_score, never act as a peer judge
// (Design Note 9: "model it as a transformation step over the combined
// feedback, not as a peer of the general judges").
func (mj *MultiJudge) applyEquationSpecialist(ctx context.Context, combined *types.JudgeFeedback, renderedDataURI string) {
	raw, err := mj.equationSpecialist.Ask(ctx, equationSpecialistPrompt, "Inspect this rendered page for ASCII-art math.", []llmclient.ImagePart{{DataURI: renderedDataURI}})
	if err != nil {
		mj.logger.Warn("equation specialist call failed", zap.Error(err))
		return
	}

	var reply equationSpecialistReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		mj.logger.Warn("equation specialist reply failed to parse", zap.Error(err))
		return
	}

	if reply.ASCIIArtDetected && combined.EquationScore > equationCapScore {
		combined.EquationScore = equationCapScore
		combined.EquationCapped = true
		combined.FidelityScore = types.Composite(combined.TextAccuracyScore, combined.LayoutScore, combined.EquationScore, combined.ColorMatchScore)
	}
}

const verificationGatePrompt = `You are a lenient final check on an HTML reproduction of a document page
that already scored well on a strict rubric. Only flag genuinely
disqualifying problems (missing major content, broken layout, illegible
text). Respond with a single strictly-valid JSON object (no markdown
fences, no prose): {"verdict": "accept"|"reject"|"needs_refinement",
"reason": string}.`

type verificationGateReply struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// runVerificationGate implements spec §4.6 step 4.
func (mj *MultiJudge) runVerificationGate(ctx context.Context, originalDataURI, renderedDataURI string) Gate {
	raw, err := mj.verificationGate.Ask(ctx, verificationGatePrompt, "Image 1 is the original page. Image 2 is the rendered reproduction.", []llmclient.ImagePart{
		{DataURI: originalDataURI},
		{DataURI: renderedDataURI},
	})
	if err != nil {
		mj.logger.Warn("verification gate call failed, defaulting to accept", zap.Error(err))
		return GateAccept
	}

	var reply verificationGateReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		mj.logger.Warn("verification gate reply failed to parse, defaulting to accept", zap.Error(err))
		return GateAccept
	}

	switch Gate(reply.Verdict) {
	case GateReject:
		return GateReject
	case GateNeedsRefinement:
		return GateNeedsRefinement
	default:
		return GateAccept
	}
}

var fenceRe = regexp.MustCompile("^```(?:json)?|```$")

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = fenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
