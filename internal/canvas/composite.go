package canvas

import (
	"image"

	"github.com/gogpu/gg/scene"
)

// Premultiplied 8-bit Porter-Duff operators.
var (
	blendDestinationOut = scene.BlendDestinationOut.GetBlendFunc()
	blendDestinationIn  = scene.BlendDestinationIn.GetBlendFunc()
	blendSourceOver     = scene.BlendSourceOver.GetBlendFunc()
)

// destinationOut removes cov from dst: each premultiplied dst pixel is scaled
// by (1 - coverage). Only the overlap of the two rectangles is touched.
func destinationOut(dst *image.RGBA, cov *image.Alpha) {
	r := dst.Rect.Intersect(cov.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		ci := cov.PixOffset(r.Min.X, y)
		di := dst.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x, ci, di = x+1, ci+1, di+4 {
			a := cov.Pix[ci]
			if a == 0 {
				continue
			}
			p := dst.Pix[di : di+4 : di+4]
			p[0], p[1], p[2], p[3] = blendDestinationOut(0, 0, 0, a, p[0], p[1], p[2], p[3])
		}
	}
}

// destinationIn keeps dst only where src is opaque: each premultiplied dst
// pixel is scaled by the alpha of src. Pixels of dst outside src become
// transparent.
func destinationIn(dst, src *image.RGBA) {
	b := dst.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		di := dst.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x, di = x+1, di+4 {
			var sr, sg, sb, sa uint8
			if (image.Point{X: x, Y: y}).In(src.Rect) {
				s := src.Pix[src.PixOffset(x, y):]
				sr, sg, sb, sa = s[0], s[1], s[2], s[3]
			}
			if sa == 255 {
				continue
			}
			p := dst.Pix[di : di+4 : di+4]
			p[0], p[1], p[2], p[3] = blendDestinationIn(sr, sg, sb, sa, p[0], p[1], p[2], p[3])
		}
	}
}

// unionCoverage accumulates cov into dst using source-over on alpha alone.
func unionCoverage(dst, cov *image.Alpha) {
	r := dst.Rect.Intersect(cov.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		ci := cov.PixOffset(r.Min.X, y)
		di := dst.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x, ci, di = x+1, ci+1, di+1 {
			a := cov.Pix[ci]
			if a == 0 {
				continue
			}
			_, _, _, dst.Pix[di] = blendSourceOver(0, 0, 0, a, 0, 0, 0, dst.Pix[di])
		}
	}
}

// alphaOf extracts the alpha channel of img as coverage over the same
// rectangle.
func alphaOf(img *image.RGBA) *image.Alpha {
	r := img.Rect
	cov := image.NewAlpha(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		si := img.PixOffset(r.Min.X, y)
		ci := cov.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x, si, ci = x+1, si+4, ci+1 {
			cov.Pix[ci] = img.Pix[si+3]
		}
	}
	return cov
}

// hasTransparency reports whether any pixel of img is not fully opaque.
func hasTransparency(img *image.RGBA) bool {
	r := img.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := img.PixOffset(r.Min.X, y) + 3
		for x := r.Min.X; x < r.Max.X; x, i = x+1, i+4 {
			if img.Pix[i] != 255 {
				return true
			}
		}
	}
	return false
}
