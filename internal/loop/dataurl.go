package loop

import (
	"encoding/base64"
	"os"

	"pdf2html-agent/internal/types"
)

// dataURIForFile builds the data URI MultiJudge expects for the original
// page image, reusing the base64 encoding the Ingestor already produced.
func dataURIForFile(page types.PageAssets) string {
	return "data:image/png;base64," + page.ImageBase64
}

// dataURIForRenderedFile reads a renderer screenshot from disk and wraps
// it as a data URI. A read failure degrades to an empty image rather than
// aborting the iteration; the judge call below will simply score it poorly.
func dataURIForRenderedFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "data:image/png;base64,"
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}
