package canvas

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
	red   = color.NRGBA{255, 0, 0, 255}
)

// solidImage creates an image filled with c.
func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// gradientImage creates an opaque image whose colour varies on both axes.
func gradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(40 + 150*x/width),
				G: uint8(60 + 120*y/height),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func newTestDocument(t *testing.T, src image.Image, w, h int) *Document {
	t.Helper()
	doc, err := NewDocument(src, Size{W: w, H: h})
	if err != nil {
		t.Fatalf("NewDocument failed: %v", err)
	}
	return doc
}

func alphaAt(img *image.RGBA, x, y int) uint8 {
	return img.RGBAAt(x, y).A
}

func TestNewDocument(t *testing.T) {
	src := gradientImage(30, 40)
	doc := newTestDocument(t, src, 60, 80)

	if doc.Size() != (Size{W: 60, H: 80}) {
		t.Errorf("Size: got %+v", doc.Size())
	}
	want := imaging.RedrawAt(src, 60, 80)
	if !bytes.Equal(doc.Working().Pix, want.Pix) {
		t.Error("working bitmap should equal the source redrawn at logical size")
	}
	if doc.HasAnnotations() {
		t.Error("fresh document should have no annotations")
	}
}

func TestNewDocument_Invalid(t *testing.T) {
	if _, err := NewDocument(nil, Size{W: 10, H: 10}); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewDocument(solidImage(2, 2, white), Size{}); err == nil {
		t.Error("expected error for empty logical size")
	}
}

func TestDocument_OriginalIsACopy(t *testing.T) {
	doc := newTestDocument(t, solidImage(4, 4, white), 4, 4)
	orig := doc.Original()
	orig.Pix[0] = 0
	if doc.Original().Pix[0] != 255 {
		t.Error("mutating Original() leaked into the document")
	}
}

func TestEraseRegion_MaskComplement(t *testing.T) {
	doc := newTestDocument(t, solidImage(100, 120, white), 100, 120)
	erased := image.Rect(20, 30, 60, 90)
	doc.EraseRegion(erased)

	working := doc.Working()
	mask := doc.BuildMask()
	if !mask.HasTransparency {
		t.Fatal("mask should report transparency after an erase")
	}

	for _, p := range []image.Point{{20, 30}, {59, 89}, {40, 60}, {19, 30}, {60, 60}, {0, 0}, {99, 119}} {
		inside := p.In(erased)
		want := uint8(255)
		if inside {
			want = 0
		}
		if got := alphaAt(mask.Image, p.X, p.Y); got != want {
			t.Errorf("mask alpha at %v: got %d, want %d", p, got, want)
		}
		if got := alphaAt(working, p.X, p.Y); got != want {
			t.Errorf("working alpha at %v: got %d, want %d", p, got, want)
		}
	}
}

func TestEraseRegion_ClippedToCanvas(t *testing.T) {
	doc := newTestDocument(t, solidImage(10, 10, white), 10, 10)
	doc.EraseRegion(image.Rect(-5, -5, 3, 3))
	doc.EraseRegion(image.Rect(50, 50, 60, 60))

	w := doc.Working()
	if alphaAt(w, 0, 0) != 0 || alphaAt(w, 2, 2) != 0 {
		t.Error("clipped region should be erased")
	}
	if alphaAt(w, 3, 3) != 255 {
		t.Error("pixel outside the region should be untouched")
	}
}

func TestBuildMask_NoErase(t *testing.T) {
	doc := newTestDocument(t, solidImage(16, 16, white), 16, 16)
	mask := doc.BuildMask()
	if mask.HasTransparency {
		t.Error("mask of an untouched opaque page should be fully opaque")
	}
	if !bytes.Equal(mask.Image.Pix, doc.Original().Pix) {
		t.Error("mask of an untouched page should equal the source")
	}
}

func TestBuildMask_UsesUnfilteredSource(t *testing.T) {
	src := gradientImage(20, 20)
	doc := newTestDocument(t, src, 20, 20)
	if err := doc.SetFilters(Filters{Brightness: 180, Contrast: 100, Saturation: 100}); err != nil {
		t.Fatalf("SetFilters failed: %v", err)
	}
	mask := doc.BuildMask()
	if !bytes.Equal(mask.Image.Pix, doc.Original().Pix) {
		t.Error("mask should be built from the source image, not the filtered layer")
	}
}

func TestResetAll(t *testing.T) {
	src := gradientImage(40, 40)
	doc := newTestDocument(t, src, 40, 40)
	doc.EraseRegion(image.Rect(0, 0, 10, 10))
	if err := doc.DrawText(Point{X: 5, Y: 30}, TextStyle{Size: 20}, "hi"); err != nil {
		t.Fatalf("DrawText failed: %v", err)
	}
	if err := doc.SetFilters(Filters{Brightness: 50, Contrast: 150, Saturation: 0}); err != nil {
		t.Fatalf("SetFilters failed: %v", err)
	}

	doc.ResetAll()

	if doc.HasAnnotations() {
		t.Error("ResetAll should drop annotations")
	}
	if doc.Filters() != NeutralFilters {
		t.Errorf("filters: got %+v, want neutral", doc.Filters())
	}
	if !bytes.Equal(doc.Working().Pix, doc.Original().Pix) {
		t.Error("ResetAll should restore the source image")
	}
}

func TestReplaceSource(t *testing.T) {
	doc := newTestDocument(t, solidImage(10, 10, white), 20, 20)
	doc.EraseRegion(image.Rect(0, 0, 5, 5))
	_ = doc.SetFilters(Filters{Brightness: 120, Contrast: 100, Saturation: 100})

	doc.ReplaceSource(solidImage(5, 5, color.RGBA{0, 0, 255, 255}))

	if doc.HasAnnotations() || !doc.Filters().IsNeutral() {
		t.Error("ReplaceSource should clear filters and annotations")
	}
	if got := doc.Working().RGBAAt(1, 1); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("working pixel: got %v, want blue", got)
	}
	if doc.Size() != (Size{W: 20, H: 20}) {
		t.Errorf("logical size changed: %+v", doc.Size())
	}
}

func TestDestinationOut_Partial(t *testing.T) {
	dst := solidImage(2, 1, white)
	cov := image.NewAlpha(image.Rect(0, 0, 2, 1))
	cov.Pix[0] = 0
	cov.Pix[1] = 128

	destinationOut(dst, cov)

	if got := dst.RGBAAt(0, 0); got != white {
		t.Errorf("uncovered pixel changed: %v", got)
	}
	if got := dst.RGBAAt(1, 0); diff8(got.A, 127) > 1 || diff8(got.R, 127) > 1 {
		t.Errorf("half-covered pixel: got %v, want alpha 127", got)
	}
}

func TestDestinationIn_ScalesByAlpha(t *testing.T) {
	dst := solidImage(3, 1, white)
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Pix[3] = 255
	src.Pix[7] = 128

	destinationIn(dst, src)

	if got := dst.RGBAAt(0, 0); got != white {
		t.Errorf("opaque source: got %v, want white", got)
	}
	if got := dst.RGBAAt(1, 0); diff8(got.A, 128) > 1 || diff8(got.G, 128) > 1 {
		t.Errorf("half source: got %v, want alpha 128", got)
	}
	if got := dst.RGBAAt(2, 0); got.A != 0 {
		t.Errorf("outside source: got %v, want transparent", got)
	}
}

func TestUnionCoverage(t *testing.T) {
	dst := image.NewAlpha(image.Rect(0, 0, 1, 1))
	cov := image.NewAlpha(image.Rect(0, 0, 1, 1))
	cov.Pix[0] = 128

	unionCoverage(dst, cov)
	unionCoverage(dst, cov)

	// 128 + 128*(127/255) = 192
	if diff8(dst.Pix[0], 192) > 1 {
		t.Errorf("coverage: got %d, want 192", dst.Pix[0])
	}
}

func diff8(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
