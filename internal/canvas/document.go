package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/fogleman/gg"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

// Document is one page on the editor canvas.
type Document struct {
	size     Size
	original *image.RGBA
	filtered *image.RGBA
	filters  Filters

	// ink and erased are allocated on first use.
	ink    *image.RGBA
	erased *image.Alpha
}

// NewDocument redraws src at the logical size and returns a document with no
// filters and no annotations.
func NewDocument(src image.Image, size Size) (*Document, error) {
	if src == nil {
		return nil, errors.New("source image is nil")
	}
	if !size.valid() {
		return nil, fmt.Errorf("%w: logical size is %dx%d", ErrCanvasNotReady, size.W, size.H)
	}
	d := &Document{size: size}
	d.load(src)
	return d, nil
}

func (d *Document) load(src image.Image) {
	d.original = imaging.RedrawAt(src, d.size.W, d.size.H)
	d.filters = NeutralFilters
	d.filtered = imaging.CloneRGBA(d.original)
	d.ink = nil
	d.erased = nil
}

// Size returns the logical size of the document.
func (d *Document) Size() Size {
	return d.size
}

// Original returns a copy of the source image at logical size.
func (d *Document) Original() *image.RGBA {
	return imaging.CloneRGBA(d.original)
}

// HasAnnotations reports whether any ink or erasure has been applied since
// the source was loaded.
func (d *Document) HasAnnotations() bool {
	return d.ink != nil || d.erased != nil
}

// Working composites the layers into a new bitmap.
func (d *Document) Working() *image.RGBA {
	out := imaging.CloneRGBA(d.filtered)
	if d.erased != nil {
		destinationOut(out, d.erased)
	}
	if d.ink != nil {
		draw.Draw(out, out.Rect, d.ink, image.Point{}, draw.Over)
	}
	return out
}

// ReplaceSource makes img the new source image, for example after a remote
// edit. Filters and annotations are cleared since img already carries them.
func (d *Document) ReplaceSource(img image.Image) {
	d.load(img)
}

// ResetAll drops filters and every annotation, leaving the source image.
func (d *Document) ResetAll() {
	d.filters = NeutralFilters
	d.filtered = imaging.CloneRGBA(d.original)
	d.ink = nil
	d.erased = nil
}

// EraseRegion cuts r out of the working bitmap.
func (d *Document) EraseRegion(r image.Rectangle) {
	r = r.Intersect(d.size.Rect())
	if r.Empty() {
		return
	}
	cov := image.NewAlpha(r)
	for i := range cov.Pix {
		cov.Pix[i] = 0xff
	}
	d.applyErase(cov)
}

func (d *Document) applyErase(cov *image.Alpha) {
	if d.erased == nil {
		d.erased = image.NewAlpha(d.size.Rect())
	}
	unionCoverage(d.erased, cov)
	if d.ink != nil {
		destinationOut(d.ink, cov)
	}
}

func (d *Document) inkLayer() *image.RGBA {
	if d.ink == nil {
		d.ink = image.NewRGBA(d.size.Rect())
	}
	return d.ink
}

// eraseSegment cuts a round-capped line of the given width.
func (d *Document) eraseSegment(from, to Point, width float64) {
	seg := d.rasterSegment(from, to, width, color.White)
	if seg == nil {
		return
	}
	d.applyErase(alphaOf(seg))
}

// inkSegment paints a round-capped line onto the ink layer.
func (d *Document) inkSegment(from, to Point, width float64, c color.Color) {
	seg := d.rasterSegment(from, to, width, c)
	if seg == nil {
		return
	}
	draw.Draw(d.inkLayer(), seg.Rect, seg, seg.Rect.Min, draw.Over)
}

// rasterSegment strokes one line segment onto a scratch bitmap covering only
// the segment's bounding box. The returned image is positioned in logical
// coordinates; nil means the segment lies outside the canvas.
func (d *Document) rasterSegment(from, to Point, width float64, c color.Color) *image.RGBA {
	pad := width/2 + 2
	r := image.Rect(
		int(math.Floor(math.Min(from.X, to.X)-pad)),
		int(math.Floor(math.Min(from.Y, to.Y)-pad)),
		int(math.Ceil(math.Max(from.X, to.X)+pad)),
		int(math.Ceil(math.Max(from.Y, to.Y)+pad)),
	).Intersect(d.size.Rect())
	if r.Empty() {
		return nil
	}

	scratch := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	dc := gg.NewContextForRGBA(scratch)
	dc.Translate(-float64(r.Min.X), -float64(r.Min.Y))
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.MoveTo(from.X, from.Y)
	dc.LineTo(to.X, to.Y)
	dc.Stroke()

	// Same pixels, re-anchored at the segment's logical position.
	scratch.Rect = r
	return scratch
}
