package ingestor

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/tiff"

	"pdf2html-agent/internal/types"
)

// extractFigures shells out to pdfcpu's extract mode twice: once for the
// page's raw content stream (to locate image placements) and once for the
// page's embedded raster images (to get their bytes and mime type), then
// pairs them up in drawing order. This mirrors the teacher's own pattern of
// driving pdfcpu through its stable api.Extract* entry points
// (internal/pdf/pdfcpu_overlay.go uses api.ReadContextFile/api.MergeCreateFile
// the same way: call the public function, work from the files it produces).
//
// Placement bounding boxes are derived from the content stream's `cm`/`Do`
// sequence (CTM applied to the unit square), scaled to raster coordinates
// by DPI/72 (the scale law grounded in the gopdf pixmap renderer in
// other_examples). When the page has more Do-placements than extracted
// image files (e.g. a placement referencing a form XObject rather than an
// image), the extra placements are dropped rather than mis-paired.
func (ing *Ingestor) extractFigures(pdfPath string, pageIndex int) ([]types.Figure, error) {
	pageNr := pageIndex + 1
	pageSel := []string{fmt.Sprintf("%d", pageNr)}

	tmpDir, err := os.MkdirTemp("", "pdf2html_figures_*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractContentFile(pdfPath, tmpDir, pageSel, nil); err != nil {
		return nil, fmt.Errorf("extract page content: %w", err)
	}
	if err := api.ExtractImagesFile(pdfPath, tmpDir, pageSel, nil); err != nil {
		return nil, fmt.Errorf("extract page images: %w", err)
	}

	content, err := readPageContent(tmpDir, pageNr)
	if err != nil {
		return nil, err
	}
	placements := scanImagePlacements(content)

	imageFiles, err := readPageImages(tmpDir)
	if err != nil {
		return nil, err
	}
	if len(imageFiles) == 0 {
		return nil, nil
	}

	scale := float64(ing.dpi) / 72.0
	figures := make([]types.Figure, 0, len(imageFiles))
	for i, imgPath := range imageFiles {
		data, err := os.ReadFile(imgPath)
		if err != nil {
			continue
		}
		mime := mimeForExt(filepath.Ext(imgPath))
		if mime == "image/tiff" {
			// Browsers can't render <img> tags pointed at TIFF data URIs, so
			// recompress to PNG rather than carry a figure the renderer
			// would draw as a broken image.
			if converted, ok := tiffToPNG(data); ok {
				data, mime = converted, "image/png"
			}
		}

		var x0, y0, x1, y1 float64
		if i < len(placements) {
			x0, y0, x1, y1 = placements[i].bbox()
		}

		figures = append(figures, types.Figure{
			Index:     i,
			X0:        x0 * scale,
			Y0:        y0 * scale,
			X1:        x1 * scale,
			Y1:        y1 * scale,
			ImageData: data,
			MimeType:  mime,
			DataURI:   dataURI(mime, data),
		})
	}
	return figures, nil
}

func readPageContent(dir string, pageNr int) ([]byte, error) {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("*page_%d.txt", pageNr)))
	if err != nil || len(matches) == 0 {
		matches, err = filepath.Glob(filepath.Join(dir, "*.txt"))
	}
	if err != nil {
		return nil, fmt.Errorf("locate extracted content file: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return os.ReadFile(matches[0])
}

func readPageImages(dir string) ([]string, error) {
	var files []string
	for _, ext := range []string{"*.png", "*.jpg", "*.jpeg", "*.tif", "*.tiff"} {
		matches, err := filepath.Glob(filepath.Join(dir, ext))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// tiffToPNG decodes a TIFF-encoded embedded image and re-encodes it as PNG.
// It returns ok=false on any decode failure, leaving the caller to fall back
// to the original bytes rather than fail figure extraction entirely.
func tiffToPNG(data []byte) ([]byte, bool) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}

// imagePlacement is the six-element CTM in effect at the moment an image
// XObject's `Do` operator executes: the unit square [0,1]x[0,1] maps to the
// placed image's bounding box via (a,b,c,d,e,f).
type imagePlacement struct {
	a, b, c, d, e, f float64
}

func (p imagePlacement) bbox() (x0, y0, x1, y1 float64) {
	corners := [4][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	x0, y0 = p.a*corners[0][0]+p.c*corners[0][1]+p.e, p.b*corners[0][0]+p.d*corners[0][1]+p.f
	x1, y1 = x0, y0
	for _, pt := range corners[1:] {
		x := p.a*pt[0] + p.c*pt[1] + p.e
		y := p.b*pt[0] + p.d*pt[1] + p.f
		if x < x0 {
			x0 = x
		}
		if x > x1 {
			x1 = x
		}
		if y < y0 {
			y0 = y
		}
		if y > y1 {
			y1 = y
		}
	}
	return x0, y0, x1, y1
}

// scanImagePlacements is a minimal content-stream tokenizer: it tracks the
// current transformation matrix across `q`/`Q`/`cm` and records one
// imagePlacement per `Do` operator, in order. It does not resolve resource
// names to XObject subtype, so a `Do` targeting a form XObject (rather than
// an image) also produces a placement entry; extractFigures only consumes
// as many placements as it has actual extracted images, so such entries are
// silently unused rather than mis-paired with the wrong image.
func scanImagePlacements(content []byte) []imagePlacement {
	var stack []imagePlacement
	cur := imagePlacement{a: 1, d: 1}
	var placements []imagePlacement
	var nums []float64

	for _, tok := range splitTokens(content) {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			nums = append(nums, v)
			continue
		}
		switch tok {
		case "q":
			stack = append(stack, cur)
		case "Q":
			if len(stack) > 0 {
				cur = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
		case "cm":
			if len(nums) >= 6 {
				n := nums[len(nums)-6:]
				m := imagePlacement{a: n[0], b: n[1], c: n[2], d: n[3], e: n[4], f: n[5]}
				cur = compose(m, cur)
			}
			nums = nums[:0]
		case "Do":
			placements = append(placements, cur)
			nums = nums[:0]
		default:
			nums = nums[:0]
		}
	}
	return placements
}

// compose returns the CTM after concatenating m (the operand of `cm`) onto
// the current matrix parent, per the PDF content-stream composition rule.
func compose(m, parent imagePlacement) imagePlacement {
	return imagePlacement{
		a: m.a*parent.a + m.b*parent.c,
		b: m.a*parent.b + m.b*parent.d,
		c: m.c*parent.a + m.d*parent.c,
		d: m.c*parent.b + m.d*parent.d,
		e: m.e*parent.a + m.f*parent.c + parent.e,
		f: m.e*parent.b + m.f*parent.d + parent.f,
	}
}

func splitTokens(content []byte) []string {
	var tokens []string
	var cur bytes.Buffer
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, b := range content {
		switch {
		case b == ' ' || b == '\n' || b == '\r' || b == '\t':
			flush()
		default:
			cur.WriteByte(b)
		}
	}
	flush()
	return tokens
}
