package canvas

import (
	"errors"
	"fmt"
	"image/color"
	"sort"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

// DefaultFontSize is the text size in logical pixels when a style leaves it
// unset.
const DefaultFontSize = 96.0

// lineSpacing is the distance between baselines as a multiple of the font
// height.
const lineSpacing = 1.2

// ErrUnknownFont is returned for a font name that is not registered.
var ErrUnknownFont = errors.New("unknown font")

var fontData = map[string][]byte{
	"sans":        goregular.TTF,
	"sans-bold":   gobold.TTF,
	"sans-italic": goitalic.TTF,
	"mono":        gomono.TTF,
}

var (
	fontMu sync.Mutex
	fonts  = map[string]*truetype.Font{}
)

// Fonts returns the names of the available fonts.
func Fonts() []string {
	names := make([]string, 0, len(fontData))
	for name := range fontData {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loadFont(name string) (*truetype.Font, error) {
	fontMu.Lock()
	defer fontMu.Unlock()

	if f, ok := fonts[name]; ok {
		return f, nil
	}
	data, ok := fontData[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFont, name)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %q: %w", name, err)
	}
	fonts[name] = f
	return f, nil
}

// TextStyle describes how overlay text is drawn.
type TextStyle struct {
	Font  string  `json:"font"`  // one of Fonts(); default "sans"
	Size  float64 `json:"size"`  // logical pixels; default DefaultFontSize
	Color string  `json:"color"` // hex; default black
}

func (s TextStyle) resolve() (TextStyle, color.NRGBA, error) {
	if s.Font == "" {
		s.Font = "sans"
	}
	if s.Size == 0 {
		s.Size = DefaultFontSize
	}
	if s.Size < 0 {
		return s, color.NRGBA{}, fmt.Errorf("font size must be positive, got %g", s.Size)
	}
	if s.Color == "" {
		s.Color = "#000000"
	}
	if _, ok := fontData[s.Font]; !ok {
		return s, color.NRGBA{}, fmt.Errorf("%w: %q", ErrUnknownFont, s.Font)
	}
	c, err := imaging.ParseHexColor(s.Color)
	if err != nil {
		return s, color.NRGBA{}, err
	}
	return s, c, nil
}

type pendingText struct {
	style TextStyle
	text  string
}

// SetPendingText stages text to be placed by the next PointerDown while
// ToolText is selected. Empty text clears the staged text.
func (e *Engine) SetPendingText(style TextStyle, text string) error {
	if text == "" {
		e.pending = nil
		return nil
	}
	resolved, _, err := style.resolve()
	if err != nil {
		return err
	}
	e.pending = &pendingText{style: resolved, text: text}
	return nil
}

// PendingText returns the staged text, if any.
func (e *Engine) PendingText() (string, bool) {
	if e.pending == nil {
		return "", false
	}
	return e.pending.text, true
}

func (e *Engine) commitText(at Point) error {
	if e.pending == nil {
		return nil
	}
	p := e.pending
	e.pending = nil
	return e.doc.DrawText(at, p.style, p.text)
}

// DrawText flattens text onto the ink layer with the first baseline at the
// given point. Lines are separated by "\n".
func (d *Document) DrawText(at Point, style TextStyle, text string) error {
	style, c, err := style.resolve()
	if err != nil {
		return err
	}
	f, err := loadFont(style.Font)
	if err != nil {
		return err
	}

	dc := gg.NewContextForRGBA(d.inkLayer())
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: style.Size}))
	dc.SetColor(c)

	step := dc.FontHeight() * lineSpacing
	for i, line := range strings.Split(text, "\n") {
		dc.DrawString(line, at.X, at.Y+float64(i)*step)
	}
	return nil
}
