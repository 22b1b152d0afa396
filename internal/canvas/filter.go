package canvas

import (
	"errors"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/adjust"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

// Filter values are percentages; 100 leaves the image unchanged.
const (
	MinFilterValue = 0
	MaxFilterValue = 200
)

// ErrFilterRange is returned for a filter value outside [MinFilterValue, MaxFilterValue].
var ErrFilterRange = errors.New("filter value out of range")

// Filters holds the brightness, contrast and saturation percentages.
type Filters struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Saturation int `json:"saturation"`
}

// NeutralFilters leaves the image untouched.
var NeutralFilters = Filters{Brightness: 100, Contrast: 100, Saturation: 100}

// Validate checks every value against the allowed range.
func (f Filters) Validate() error {
	for _, v := range []struct {
		name  string
		value int
	}{
		{"brightness", f.Brightness},
		{"contrast", f.Contrast},
		{"saturation", f.Saturation},
	} {
		if v.value < MinFilterValue || v.value > MaxFilterValue {
			return fmt.Errorf("%w: %s=%d (allowed %d-%d)", ErrFilterRange, v.name, v.value, MinFilterValue, MaxFilterValue)
		}
	}
	return nil
}

// IsNeutral reports whether f leaves the image unchanged.
func (f Filters) IsNeutral() bool {
	return f == NeutralFilters
}

// apply runs src through brightness, contrast and saturation in that order.
// Neutral stages are skipped so an all-neutral set copies src exactly.
func (f Filters) apply(src *image.RGBA) *image.RGBA {
	if f.IsNeutral() {
		return imaging.CloneRGBA(src)
	}
	var img image.Image = src
	if f.Brightness != 100 {
		img = adjust.Brightness(img, change(f.Brightness))
	}
	if f.Contrast != 100 {
		img = adjust.Contrast(img, change(f.Contrast))
	}
	if f.Saturation != 100 {
		img = adjust.Saturation(img, change(f.Saturation))
	}
	return imaging.ToRGBA(img)
}

// change maps a percentage onto bild's [-1, 1] adjustment range.
func change(pct int) float64 {
	return float64(pct)/100 - 1
}

// Filters returns the current filter values.
func (d *Document) Filters() Filters {
	return d.filters
}

// SetFilters recomputes the filtered layer from the source image with all
// three values. Earlier filter output is discarded, never compounded.
func (d *Document) SetFilters(f Filters) error {
	if err := f.Validate(); err != nil {
		return err
	}
	d.filters = f
	d.filtered = f.apply(d.original)
	return nil
}

// ResetFilters restores neutral values. Ink and erasures are kept.
func (d *Document) ResetFilters() {
	d.filters = NeutralFilters
	d.filtered = imaging.CloneRGBA(d.original)
}
