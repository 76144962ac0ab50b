// Package generator turns a page image (plus document context) into
// self-contained HTML, and refines prior HTML given structured judge
// feedback (spec §4.3).
package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pdf2html-agent/internal/apperr"
	"pdf2html-agent/internal/llmclient"
	"pdf2html-agent/internal/types"
)

const systemPrompt = `You are an expert web developer who converts scanned document pages into
self-contained HTML that visually reproduces the page. Rules:
- Emit a single complete HTML document, nothing else: no prose, no markdown fences.
- Include a math-typesetting library via CDN (e.g. KaTeX or MathJax) and express
  math as \(...\) inline or $$...$$ block; never as ASCII-art approximations.
- Use CSS grid or flexbox for any multi-column layout.
- Set the dir and lang attributes exactly as instructed in the document profile.
- For every figure, emit <img data-figure-index="N"> with a stable placeholder
  src; do not invent figures that do not exist.`

// Generator produces and refines per-page HTML.
type Generator struct {
	client llmclient.Asker
	logger *zap.Logger
}

// New constructs a Generator bound to a vision-model client.
func New(client llmclient.Asker, logger *zap.Logger) *Generator {
	return &Generator{client: client, logger: logger}
}

// GenerateInitial produces the first iteration's HTML from a page image,
// its figures, and the document's prompt addendum.
func (g *Generator) GenerateInitial(ctx context.Context, page types.PageAssets, addendum types.PromptAddendum) (string, error) {
	userText := fmt.Sprintf("%s\n\nProduce the complete HTML document for this page.", addendum.Text)
	image := llmclient.ImagePart{DataURI: "data:image/png;base64," + page.ImageBase64}

	reply, err := g.client.Ask(ctx, systemPrompt, userText, []llmclient.ImagePart{image})
	if err != nil {
		return "", apperr.New(apperr.KindGenerator, "initial generation call failed", err)
	}
	return g.postProcess(reply, page.Figures)
}

// Refine produces a revised HTML given the prior HTML, the original page
// image, and structured judge feedback.
func (g *Generator) Refine(ctx context.Context, page types.PageAssets, previousHTML string, feedback *types.JudgeFeedback, addendum types.PromptAddendum) (string, error) {
	userText := buildRefinePrompt(previousHTML, feedback, addendum)
	image := llmclient.ImagePart{DataURI: "data:image/png;base64," + page.ImageBase64}

	reply, err := g.client.Ask(ctx, systemPrompt, userText, []llmclient.ImagePart{image})
	if err != nil {
		return "", apperr.New(apperr.KindGenerator, "refine call failed", err)
	}
	return g.postProcess(reply, page.Figures)
}

func buildRefinePrompt(previousHTML string, feedback *types.JudgeFeedback, addendum types.PromptAddendum) string {
	var b strings.Builder
	b.WriteString(addendum.Text)
	b.WriteString("\n\nHere is the previous HTML:\n")
	b.WriteString(previousHTML)

	if feedback != nil {
		if len(feedback.CriticalErrors) > 0 {
			b.WriteString("\n\nFix these critical errors:\n")
			for _, e := range feedback.CriticalErrors {
				b.WriteString("- ")
				b.WriteString(e)
				b.WriteString("\n")
			}
		}
		if len(feedback.PreservedCorrectly) > 0 {
			b.WriteString("\nDo not change these elements; they were already judged correct:\n")
			for _, p := range feedback.PreservedCorrectly {
				b.WriteString("- ")
				b.WriteString(p)
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\nProduce the complete, revised HTML document.")
	return b.String()
}

// postProcess strips fenced code markup and injects figure data URIs
// (spec §4.3 post-processing steps 1-2).
func (g *Generator) postProcess(reply string, figures []types.Figure) (string, error) {
	stripped := StripFences(reply)
	if !strings.Contains(stripped, "<") {
		return "", apperr.New(apperr.KindGenerator, "model reply contained no parseable HTML", nil)
	}
	return InjectFigures(stripped, figures), nil
}

// StripFences removes leading/trailing fenced-code markers a model may
// have wrapped its HTML reply in (spec §4.3 post-processing step 1).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, fence := range []string{"```html", "```HTML", "```"} {
		if strings.HasPrefix(s, fence) {
			s = strings.TrimPrefix(s, fence)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
