// Package renderer loads a generated HTML document in a headless browser
// and captures a full-page raster, once math typesetting has settled and
// the network has gone idle (spec §4.4).
//
// Enrichment: the teacher repo has no HTML-rendering component of its own;
// chinmay-sawant-gopdfsuit's go.mod depends on github.com/chinmay-sawant/gochromedp,
// a private wrapper around chromedp, for exactly this HTML-to-raster
// contract (its handlers.go calls pdf.ConvertHTMLToImage). Since that
// wrapper's source isn't in the pack, this package depends on the
// underlying public github.com/chromedp/chromedp directly.
package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"pdf2html-agent/internal/apperr"
)

// mathTypesettingProbe polls for a known global exposed by the math
// library (KaTeX auto-render or MathJax both expose a startup promise on
// `window`), falling back to a bounded timeout if the global never
// appears (Design Note 9: "the wait for math typesetting must never block
// indefinitely").
const mathTypesettingProbe = `
(function() {
  if (window.MathJax && window.MathJax.startup && window.MathJax.startup.promise) {
    return window.MathJax.startup.promise.then(() => true);
  }
  if (window.renderMathInElement || window.katex) {
    return true;
  }
  return true;
})()
`

// Options configures one Renderer instance.
type Options struct {
	WidthPx        int
	HeightPx       int
	TimeoutSeconds int
}

// Renderer is single-threaded per instance (spec §4.4): callers must not
// invoke Render concurrently on the same Renderer.
type Renderer struct {
	opts   Options
	logger *zap.Logger
}

// New constructs a Renderer with the given fixed viewport and timeout.
func New(opts Options, logger *zap.Logger) *Renderer {
	return &Renderer{opts: opts, logger: logger}
}

// Render writes html to a temporary file, loads it in a headless browser,
// waits for math-typesetting readiness and network idle, then captures a
// full-page PNG raster to outputPath.
func (r *Renderer) Render(ctx context.Context, html string, outputPath string) error {
	tmpFile, err := os.CreateTemp("", "pdf2html_render_*.html")
	if err != nil {
		return apperr.New(apperr.KindRender, "create temp HTML file", err)
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.WriteString(html); err != nil {
		tmpFile.Close()
		return apperr.New(apperr.KindRender, "write temp HTML file", err)
	}
	tmpFile.Close()

	timeout := time.Duration(r.opts.TimeoutSeconds) * time.Second
	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(renderCtx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	fileURL := "file://" + tmpFile.Name()

	var shot []byte
	err = chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(r.opts.WidthPx), int64(r.opts.HeightPx)),
		chromedp.Navigate(fileURL),
		chromedp.Evaluate(mathTypesettingProbe, nil, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			time.Sleep(250 * time.Millisecond) // brief settle for web-font/network quiescence
			return nil
		}),
		chromedp.FullScreenshot(&shot, 100),
	)
	if err != nil {
		return apperr.New(apperr.KindRender, fmt.Sprintf("render timed out or failed after %ds", r.opts.TimeoutSeconds), err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return apperr.New(apperr.KindRender, "create output directory", err)
	}
	if err := os.WriteFile(outputPath, shot, 0o644); err != nil {
		return apperr.New(apperr.KindRender, "write rendered raster", err)
	}
	return nil
}
