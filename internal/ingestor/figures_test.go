package ingestor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/tiff"
)

func TestScanImagePlacementsSimpleDo(t *testing.T) {
	content := []byte("q 100 0 0 50 20 30 cm /Im0 Do Q")
	placements := scanImagePlacements(content)
	if len(placements) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(placements))
	}
	x0, y0, x1, y1 := placements[0].bbox()
	if x0 != 20 || y0 != 30 || x1 != 120 || y1 != 80 {
		t.Fatalf("unexpected bbox: (%v,%v,%v,%v)", x0, y0, x1, y1)
	}
}

func TestScanImagePlacementsRestoresStateAfterQ(t *testing.T) {
	content := []byte("q 10 0 0 10 0 0 cm q 5 0 0 5 1 1 cm /Im0 Do Q /Im1 Do Q")
	placements := scanImagePlacements(content)
	if len(placements) != 2 {
		t.Fatalf("expected 2 placements, got %d", len(placements))
	}
	// second Do executes under the outer 10x scale only, without the inner 5x nested cm
	x0, y0, x1, y1 := placements[1].bbox()
	if x0 != 0 || y0 != 0 || x1 != 10 || y1 != 10 {
		t.Fatalf("unexpected outer bbox after Q: (%v,%v,%v,%v)", x0, y0, x1, y1)
	}
}

func TestScanImagePlacementsNoImages(t *testing.T) {
	content := []byte("1 0 0 RG 10 10 100 100 re S")
	if placements := scanImagePlacements(content); len(placements) != 0 {
		t.Fatalf("expected 0 placements, got %d", len(placements))
	}
}

func TestTiffToPNGRoundTrips(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})

	var tiffBuf bytes.Buffer
	if err := tiff.Encode(&tiffBuf, src, nil); err != nil {
		t.Fatalf("encode fixture tiff: %v", err)
	}

	converted, ok := tiffToPNG(tiffBuf.Bytes())
	if !ok {
		t.Fatal("expected tiffToPNG to succeed on a well-formed TIFF")
	}
	if _, err := png.Decode(bytes.NewReader(converted)); err != nil {
		t.Fatalf("expected tiffToPNG output to be valid PNG: %v", err)
	}
}

func TestTiffToPNGRejectsGarbage(t *testing.T) {
	if _, ok := tiffToPNG([]byte("not a tiff")); ok {
		t.Fatal("expected tiffToPNG to fail on non-TIFF input")
	}
}

func TestDataURIDefaultsToPNG(t *testing.T) {
	uri := dataURI("", []byte("x"))
	want := "data:image/png;base64,eA=="
	if uri != want {
		t.Fatalf("got %q, want %q", uri, want)
	}
}
