// Package canvas implements the card page editor: a fixed-size logical
// canvas built from separate layers, a pointer-driven stroke engine, text
// overlays, a filter pipeline and the inpainting mask derived from erasures.
//
// # Layers
//
// A Document keeps the page as four layers and composites them on demand:
//
//   - original: the page image redrawn at the logical size; never mutated
//   - filtered: original run through the current brightness, contrast and
//     saturation values, recomputed from original on every change
//   - ink: handwriting and text, on a transparent background
//   - erased: alpha coverage of every destructive stroke
//
// The working bitmap is ink drawn over (filtered destination-out erased).
// Erase strokes cut the ink layer as well, so ink drawn before an erase is
// removed while ink drawn after it survives.
//
// # Coordinates
//
// Logical coordinates are float64 pixels with the origin at the top-left
// corner. Use MapPoint to convert pointer positions reported against an
// on-screen rectangle.
//
// # Thread Safety
//
// Document and Engine are not safe for concurrent use. The session package
// serializes access to them.
package canvas
