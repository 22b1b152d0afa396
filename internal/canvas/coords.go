package canvas

import (
	"errors"
	"fmt"
	"image"
)

// ErrCanvasNotReady is returned when a pointer position cannot be mapped
// because the on-screen canvas has no size yet.
var ErrCanvasNotReady = errors.New("canvas not ready")

// DefaultLogicalSize is the backing size of a printed card page.
var DefaultLogicalSize = Size{W: 2550, H: 3300}

// Point is a position in logical canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the logical pixel size of a canvas.
type Size struct {
	W int `json:"width"`
	H int `json:"height"`
}

// Rect returns the size as an origin-anchored rectangle.
func (s Size) Rect() image.Rectangle {
	return image.Rect(0, 0, s.W, s.H)
}

func (s Size) valid() bool {
	return s.W > 0 && s.H > 0
}

// ClientRect is the on-screen box a canvas is displayed in, as reported by
// the client.
type ClientRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MapPoint converts a pointer position in client coordinates to logical
// canvas coordinates.
//
// Parameters:
//   - clientX, clientY: Pointer position in the client's display space.
//   - rect: Box the canvas currently occupies on the client's display.
//   - logical: Pixel size of the document's bitmaps.
//
// Returns:
//   - Point: Position in logical pixels. It may fall outside the canvas when
//     the pointer is outside rect; callers clip when they draw.
//   - error: ErrCanvasNotReady if rect or logical has no area.
//
// # Scaling
//
// Each axis is scaled independently, by logical.W/rect.Width horizontally and
// logical.H/rect.Height vertically, so a stretched display box still maps its
// corners onto the canvas corners. No rounding is applied; strokes are
// rasterized with sub-pixel positions.
func MapPoint(clientX, clientY float64, rect ClientRect, logical Size) (Point, error) {
	if rect.Width <= 0 || rect.Height <= 0 {
		return Point{}, fmt.Errorf("%w: display box is %gx%g", ErrCanvasNotReady, rect.Width, rect.Height)
	}
	if !logical.valid() {
		return Point{}, fmt.Errorf("%w: logical size is %dx%d", ErrCanvasNotReady, logical.W, logical.H)
	}

	scaleX := float64(logical.W) / rect.Width
	scaleY := float64(logical.H) / rect.Height
	return Point{
		X: (clientX - rect.Left) * scaleX,
		Y: (clientY - rect.Top) * scaleY,
	}, nil
}
