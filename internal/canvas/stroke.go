package canvas

import (
	"fmt"
	"image/color"
	"strings"
)

// DefaultBrushSize is the width of an erase stroke in logical pixels.
const DefaultBrushSize = 40.0

// DefaultInkWidth is the handwriting width used until SetInk is called.
const DefaultInkWidth = 6.0

// Tool selects what a pointer gesture does.
type Tool int

const (
	ToolNone Tool = iota
	ToolErase
	ToolHandwriting
	ToolText
)

var toolNames = map[Tool]string{
	ToolNone:        "none",
	ToolErase:       "erase",
	ToolHandwriting: "handwriting",
	ToolText:        "text",
}

func (t Tool) String() string {
	if name, ok := toolNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tool(%d)", int(t))
}

// ParseTool parses a tool name. "brush" is accepted for erase.
func ParseTool(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ToolNone, nil
	case "erase", "brush":
		return ToolErase, nil
	case "handwriting", "draw", "ink":
		return ToolHandwriting, nil
	case "text":
		return ToolText, nil
	}
	return ToolNone, fmt.Errorf("unknown tool %q", s)
}

// GestureState is the state of the current pointer gesture.
type GestureState int

const (
	Idle GestureState = iota
	Active
)

func (s GestureState) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// InkStyle is the colour and width of handwriting strokes.
type InkStyle struct {
	Color color.NRGBA
	Width float64
}

// Engine turns pointer gestures into strokes on a Document.
//
// Each gesture runs Idle -> Active -> Idle. Segments are rasterized as the
// pointer moves and only the current path is kept. PointerLeave ends a
// gesture exactly like PointerUp, so a later PointerDown never continues an
// abandoned path.
type Engine struct {
	doc       *Document
	tool      Tool
	state     GestureState
	path      []Point
	brushSize float64
	ink       InkStyle
	pending   *pendingText
}

// NewEngine returns an idle engine with no tool selected.
func NewEngine(doc *Document) *Engine {
	return &Engine{
		doc:       doc,
		brushSize: DefaultBrushSize,
		ink:       InkStyle{Color: color.NRGBA{A: 0xff}, Width: DefaultInkWidth},
	}
}

// Document returns the document the engine draws on.
func (e *Engine) Document() *Document {
	return e.doc
}

// Tool returns the selected tool.
func (e *Engine) Tool() Tool {
	return e.tool
}

// SetTool selects t, ending any gesture in progress.
func (e *Engine) SetTool(t Tool) {
	e.finish()
	e.tool = t
}

// Ink returns the handwriting style.
func (e *Engine) Ink() InkStyle {
	return e.ink
}

// SetInk sets the handwriting style used by the next gesture.
func (e *Engine) SetInk(style InkStyle) error {
	if style.Width <= 0 {
		return fmt.Errorf("ink width must be positive, got %g", style.Width)
	}
	e.ink = style
	return nil
}

// State returns the gesture state.
func (e *Engine) State() GestureState {
	return e.state
}

// Path returns a copy of the points of the gesture in progress.
func (e *Engine) Path() []Point {
	if len(e.path) == 0 {
		return nil
	}
	out := make([]Point, len(e.path))
	copy(out, e.path)
	return out
}

// PointerDown starts a gesture at p. With ToolText it commits the pending
// text at p instead.
func (e *Engine) PointerDown(p Point) error {
	e.finish()

	switch e.tool {
	case ToolErase, ToolHandwriting:
		e.state = Active
		e.path = append(e.path[:0], p)
	case ToolText:
		return e.commitText(p)
	}
	return nil
}

// PointerMove extends the active path to p and rasterizes the new segment.
// It does nothing while idle.
func (e *Engine) PointerMove(p Point) {
	if e.state != Active {
		return
	}
	last := e.path[len(e.path)-1]
	e.path = append(e.path, p)
	if last == p {
		return
	}

	switch e.tool {
	case ToolErase:
		e.doc.eraseSegment(last, p, e.brushSize)
	case ToolHandwriting:
		e.doc.inkSegment(last, p, e.ink.Width, e.ink.Color)
	}
}

// PointerUp ends the gesture.
func (e *Engine) PointerUp() {
	e.finish()
}

// PointerLeave ends the gesture as if the pointer had been released.
func (e *Engine) PointerLeave() {
	e.finish()
}

// Cancel ends any gesture and drops pending text.
func (e *Engine) Cancel() {
	e.finish()
	e.pending = nil
}

func (e *Engine) finish() {
	e.state = Idle
	e.path = e.path[:0]
}
