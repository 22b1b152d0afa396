package canvas

import (
	"image"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

// Mask marks the regions an inpainting backend must preserve (opaque) and
// regenerate (transparent).
type Mask struct {
	Image *image.RGBA

	// HasTransparency is false when nothing was erased; callers then request
	// a whole-image edit instead of sending the mask.
	HasTransparency bool
}

// BuildMask derives the inpainting mask from the current working bitmap.
//
// Returns:
//   - *Mask: A new bitmap at logical size that the caller owns. The document
//     is not modified.
//
// # Compositing
//
// The source image is drawn onto a scratch bitmap and composited with the
// working bitmap using destination-in: every source pixel is scaled by the
// working bitmap's alpha. Erased regions therefore come out transparent and
// untouched regions keep the source pixels. Filters and ink do not leak into
// the mask because only the working alpha is read.
//
// Mask.HasTransparency reports whether any pixel ended up below full
// opacity. When it is false the caller requests a whole-image edit.
func (d *Document) BuildMask() *Mask {
	scratch := imaging.CloneRGBA(d.original)
	destinationIn(scratch, d.Working())
	return &Mask{
		Image:           scratch,
		HasTransparency: hasTransparency(scratch),
	}
}
