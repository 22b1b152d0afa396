// Package imaging provides image loading, encoding, and color helpers shared
// by the card editor.
//
// Everything that needs a decoded image goes through a Loader. The Loader is
// the only place where image references (data URIs, same-origin paths, remote
// URLs) become image.Image values, and it guarantees that remote URLs are
// always fetched through the configured image proxy rather than directly.
//
// Crop, RegionRect and GridOverlay build the previews handed to agents: a
// cropped part of the page with grid lines labelled in page coordinates, so
// the agent can read off where to draw or erase.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with the origin at the
// top-left corner, X increasing rightward and Y increasing downward.
//
// # Thread Safety
//
// Loader and ImageCache are safe for concurrent use. The encoding and color
// helpers are stateless.
//
// # Color Representation
//
// Colors are accepted as hex strings ("#RGB", "#RRGGBB" or "#RRGGBBAA") and
// reported in multiple formats:
//   - Hex: 6-character format "#RRGGBB" (alpha excluded)
//   - RGB: 8-bit components (0-255)
//   - RGBA: 8-bit components with alpha (0-255)
//   - HSL: Hue (0-360), Saturation (0-100), Lightness (0-100)
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Coordinates outside image bounds
//   - Malformed data URIs or hex colors
//   - Remote references when no proxy is configured (ErrCrossOrigin)
//   - Local file references without a base directory, or escaping it
//     (ErrLocalFile)
//   - Non-2xx proxy responses and oversized bodies
package imaging
