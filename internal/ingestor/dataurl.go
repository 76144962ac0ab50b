package ingestor

import "encoding/base64"

// dataURI renders image bytes as an inline data: URI, the transport format
// both figure injection (Generator) and vision-model image parts (Analyzer,
// Judge) consume directly.
func dataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
