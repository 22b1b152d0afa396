package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// DefaultGridColor is used when GridOptions.Color is nil.
var DefaultGridColor = color.NRGBA{R: 255, A: 160}

// GridOptions describes how a grid maps onto an image that may be a scaled
// or cropped view of a larger canvas.
type GridOptions struct {
	Origin  image.Point // canvas coordinate of the image's top-left pixel
	Scale   float64     // image pixels per canvas pixel; 0 means 1
	Spacing int         // canvas pixels between lines
	Color   color.Color
	Labels  bool // print the canvas coordinate next to each line
}

// GridOverlay returns a copy of img with grid lines drawn every
// opts.Spacing canvas pixels. Lines fall on multiples of the spacing in
// canvas coordinates, so a grid drawn on a cropped preview lines up with
// one drawn on the full page.
func GridOverlay(img image.Image, opts GridOptions) (*image.RGBA, error) {
	if opts.Spacing <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %d", opts.Spacing)
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	if scale < 0 {
		return nil, fmt.Errorf("grid scale must be positive, got %g", scale)
	}
	if float64(opts.Spacing)*scale < 2 {
		return nil, fmt.Errorf("grid spacing %d is too dense at this preview size", opts.Spacing)
	}
	lineColor := opts.Color
	if lineColor == nil {
		lineColor = DefaultGridColor
	}

	dst := ToRGBA(img)
	w, h := float64(dst.Bounds().Dx()), float64(dst.Bounds().Dy())
	dc := gg.NewContextForRGBA(dst)
	dc.SetLineWidth(1)
	dc.SetFontFace(basicfont.Face7x13)

	type label struct {
		text string
		x, y float64
	}
	var labels []label

	for cx := firstGridLine(opts.Origin.X, opts.Spacing); ; cx += opts.Spacing {
		px := float64(cx-opts.Origin.X) * scale
		if px >= w {
			break
		}
		dc.SetColor(lineColor)
		dc.DrawLine(px+0.5, 0, px+0.5, h)
		dc.Stroke()
		labels = append(labels, label{strconv.Itoa(cx), px + 3, 12})
	}
	for cy := firstGridLine(opts.Origin.Y, opts.Spacing); ; cy += opts.Spacing {
		py := float64(cy-opts.Origin.Y) * scale
		if py >= h {
			break
		}
		dc.SetColor(lineColor)
		dc.DrawLine(0, py+0.5, w, py+0.5)
		dc.Stroke()
		if py > 0 {
			labels = append(labels, label{strconv.Itoa(cy), 3, py + 12})
		}
	}

	if opts.Labels {
		for _, l := range labels {
			tw, _ := dc.MeasureString(l.text)
			dc.SetColor(color.NRGBA{A: 170})
			dc.DrawRectangle(l.x-1, l.y-11, tw+2, 13)
			dc.Fill()
			dc.SetColor(color.White)
			dc.DrawString(l.text, l.x, l.y)
		}
	}
	return dst, nil
}

// firstGridLine returns the smallest multiple of spacing that is >= origin.
func firstGridLine(origin, spacing int) int {
	n := origin / spacing * spacing
	if n < origin {
		n += spacing
	}
	return n
}
