package multijudge

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"pdf2html-agent/internal/llmclient"
	"pdf2html-agent/internal/types"
)

type fakeComparer struct {
	feedback *types.JudgeFeedback
}

func (f *fakeComparer) Compare(ctx context.Context, originalDataURI, renderedDataURI string) *types.JudgeFeedback {
	return f.feedback
}

type fakeAsker struct {
	reply string
	err   error
}

func (f *fakeAsker) Ask(ctx context.Context, systemPrompt, userText string, images []llmclient.ImagePart) (string, error) {
	return f.reply, f.err
}

func feedback(score int) *types.JudgeFeedback {
	return &types.JudgeFeedback{
		FidelityScore: score, LayoutScore: score, TextAccuracyScore: score, ColorMatchScore: score, EquationScore: score,
	}
}

func TestEvaluateSingleJudgeAcceptsAboveTarget(t *testing.T) {
	mj := New(&fakeComparer{feedback: feedback(90)}, nil, nil, nil, Config{TargetScore: 85}, zap.NewNop())
	combined, gate := mj.Evaluate(context.Background(), types.DocumentAnalysis{}, "orig", "rendered")
	if combined.FidelityScore != 90 {
		t.Fatalf("expected passthrough score 90, got %d", combined.FidelityScore)
	}
	if gate != GateAccept {
		t.Fatalf("expected accept gate when verification disabled, got %s", gate)
	}
}

func TestEvaluateEquationSpecialistCapsScore(t *testing.T) {
	cfg := Config{TargetScore: 85, EnableEquationSpecialist: true}
	specialist := &fakeAsker{reply: `{"ascii_art_detected": true, "explanation": "x^2 detected"}`}
	mj := New(&fakeComparer{feedback: feedback(90)}, nil, specialist, nil, cfg, zap.NewNop())

	analysis := types.DocumentAnalysis{HasEquations: true}
	combined, _ := mj.Evaluate(context.Background(), analysis, "orig", "rendered")

	if combined.EquationScore != equationCapScore {
		t.Fatalf("expected equation_score capped at %d, got %d", equationCapScore, combined.EquationScore)
	}
	if !combined.EquationCapped {
		t.Fatal("expected EquationCapped flag to be set")
	}
	if combined.FidelityScore != types.Composite(90, 90, equationCapScore, 90) {
		t.Fatalf("expected composite recomputed after cap, got %d", combined.FidelityScore)
	}
}

func TestEvaluateEquationSpecialistSkippedWithoutEquations(t *testing.T) {
	cfg := Config{TargetScore: 85, EnableEquationSpecialist: true}
	specialist := &fakeAsker{reply: `{"ascii_art_detected": true}`}
	mj := New(&fakeComparer{feedback: feedback(90)}, nil, specialist, nil, cfg, zap.NewNop())

	combined, _ := mj.Evaluate(context.Background(), types.DocumentAnalysis{HasEquations: false}, "orig", "rendered")
	if combined.EquationCapped {
		t.Fatal("did not expect equation cap when analyzer found no equations")
	}
}

func TestEvaluateVerificationGateRejectSetsFlag(t *testing.T) {
	cfg := Config{TargetScore: 85, EnableVerificationGate: true}
	gateClient := &fakeAsker{reply: `{"verdict": "reject", "reason": "missing heading"}`}
	mj := New(&fakeComparer{feedback: feedback(90)}, nil, nil, gateClient, cfg, zap.NewNop())

	combined, gate := mj.Evaluate(context.Background(), types.DocumentAnalysis{}, "orig", "rendered")
	if gate != GateReject {
		t.Fatalf("expected reject gate, got %s", gate)
	}
	if !combined.VerificationGateFailed {
		t.Fatal("expected VerificationGateFailed to be set on reject")
	}
}

func TestEvaluateVerificationGateSkippedBelowTarget(t *testing.T) {
	cfg := Config{TargetScore: 85, EnableVerificationGate: true}
	gateClient := &fakeAsker{reply: `{"verdict": "reject"}`}
	mj := New(&fakeComparer{feedback: feedback(50)}, nil, nil, gateClient, cfg, zap.NewNop())

	combined, gate := mj.Evaluate(context.Background(), types.DocumentAnalysis{}, "orig", "rendered")
	if gate != GateAccept {
		t.Fatalf("gate should not run below target, expected default accept got %s", gate)
	}
	if combined.VerificationGateFailed {
		t.Fatal("did not expect gate-failed flag when gate never ran")
	}
}

func TestScoreCrossModelRunsBothJudgesWhenEnabled(t *testing.T) {
	cfg := Config{EnableCrossJudge: true, WeightA: 0.5, WeightB: 0.5}
	mj := New(&fakeComparer{feedback: feedback(90)}, &fakeComparer{feedback: feedback(70)}, nil, nil, cfg, zap.NewNop())
	a, b := mj.scoreCrossModel(context.Background(), "orig", "rendered")
	if a == nil || b == nil {
		t.Fatal("expected both judges to run when cross-judge is enabled")
	}
}

func TestScoreCrossModelSkipsJudgeBWhenDisabled(t *testing.T) {
	cfg := Config{EnableCrossJudge: false}
	mj := New(&fakeComparer{feedback: feedback(90)}, &fakeComparer{feedback: feedback(70)}, nil, nil, cfg, zap.NewNop())
	a, b := mj.scoreCrossModel(context.Background(), "orig", "rendered")
	if a == nil {
		t.Fatal("expected judge A to run")
	}
	if b != nil {
		t.Fatal("expected judge B to be skipped when cross-judge is disabled")
	}
}
