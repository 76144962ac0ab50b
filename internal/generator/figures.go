package generator

import (
	"fmt"
	"regexp"
	"strconv"

	"pdf2html-agent/internal/types"
)

// figureImgTag matches an <img ...> element carrying a data-figure-index
// attribute, capturing the index and the tag's full text so InjectFigures
// can rewrite just its src attribute.
var figureImgTag = regexp.MustCompile(`<img\b[^>]*\bdata-figure-index="(\d+)"[^>]*>`)

var srcAttr = regexp.MustCompile(`\bsrc="[^"]*"`)
var altAttr = regexp.MustCompile(`\balt="[^"]*"`)

// InjectFigures substitutes the src of every <img data-figure-index="N">
// placeholder with figures[N].DataURI (spec §4.3 post-processing step 2,
// tested against the figure-injection round-trip property in spec §8).
// Indices with no matching figure are left with a visible placeholder alt
// text instead of a broken image reference.
func InjectFigures(html string, figures []types.Figure) string {
	byIndex := make(map[int]types.Figure, len(figures))
	for _, f := range figures {
		byIndex[f.Index] = f
	}

	return figureImgTag.ReplaceAllStringFunc(html, func(tag string) string {
		m := figureImgTag.FindStringSubmatch(tag)
		if len(m) != 2 {
			return tag
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return tag
		}
		fig, ok := byIndex[idx]
		if !ok {
			return withMissingPlaceholder(tag, idx)
		}
		return withSrc(tag, fig.DataURI)
	})
}

func withSrc(tag, dataURI string) string {
	replacement := fmt.Sprintf(`src="%s"`, dataURI)
	if srcAttr.MatchString(tag) {
		return srcAttr.ReplaceAllString(tag, replacement)
	}
	return insertAttr(tag, replacement)
}

func withMissingPlaceholder(tag string, idx int) string {
	if altAttr.MatchString(tag) {
		return tag
	}
	alt := fmt.Sprintf(`alt="missing figure %d"`, idx)
	return insertAttr(tag, alt)
}

func insertAttr(tag, attr string) string {
	const prefix = "<img"
	if len(tag) < len(prefix) {
		return tag
	}
	return prefix + " " + attr + tag[len(prefix):]
}
