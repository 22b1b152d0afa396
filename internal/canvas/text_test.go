package canvas

import (
	"errors"
	"image"
	"testing"
)

// countInked counts pixels in r that differ from white.
func countInked(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) != white {
				n++
			}
		}
	}
	return n
}

func TestFonts(t *testing.T) {
	want := []string{"mono", "sans", "sans-bold", "sans-italic"}
	got := Fonts()
	if len(got) != len(want) {
		t.Fatalf("Fonts: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Fonts[%d]: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDrawText(t *testing.T) {
	for _, font := range Fonts() {
		t.Run(font, func(t *testing.T) {
			doc := newTestDocument(t, solidImage(300, 200, white), 300, 200)
			err := doc.DrawText(Point{X: 20, Y: 80}, TextStyle{Font: font, Size: 48, Color: "#112233"}, "Hello")
			if err != nil {
				t.Fatalf("DrawText failed: %v", err)
			}
			w := doc.Working()
			if countInked(w, image.Rect(20, 30, 300, 90)) == 0 {
				t.Error("no text drawn above the baseline")
			}
			if countInked(w, image.Rect(0, 100, 300, 200)) != 0 {
				t.Error("text drawn far below the baseline")
			}
		})
	}
}

func TestDrawText_MultiLine(t *testing.T) {
	doc := newTestDocument(t, solidImage(300, 300, white), 300, 300)
	if err := doc.DrawText(Point{X: 10, Y: 50}, TextStyle{Size: 40}, "Happy\nBirthday"); err != nil {
		t.Fatalf("DrawText failed: %v", err)
	}
	if countInked(doc.Working(), image.Rect(0, 60, 300, 110)) == 0 {
		t.Error("second line missing")
	}
}

func TestDrawText_InvalidStyle(t *testing.T) {
	doc := newTestDocument(t, solidImage(10, 10, white), 10, 10)

	if err := doc.DrawText(Point{}, TextStyle{Font: "comic"}, "x"); !errors.Is(err, ErrUnknownFont) {
		t.Errorf("expected ErrUnknownFont, got %v", err)
	}
	if err := doc.DrawText(Point{}, TextStyle{Color: "#zz"}, "x"); err == nil {
		t.Error("expected error for bad colour")
	}
	if err := doc.DrawText(Point{}, TextStyle{Size: -3}, "x"); err == nil {
		t.Error("expected error for negative size")
	}
}

func TestEngine_PendingTextCommitsOnClick(t *testing.T) {
	doc := newTestDocument(t, solidImage(300, 200, white), 300, 200)
	e := NewEngine(doc)
	e.SetTool(ToolText)

	// A click with nothing staged draws nothing.
	if err := e.PointerDown(Point{X: 20, Y: 80}); err != nil {
		t.Fatalf("PointerDown failed: %v", err)
	}
	if doc.HasAnnotations() {
		t.Fatal("click without pending text should not draw")
	}

	if err := e.SetPendingText(TextStyle{Size: 48}, "Hi!"); err != nil {
		t.Fatalf("SetPendingText failed: %v", err)
	}
	if text, ok := e.PendingText(); !ok || text != "Hi!" {
		t.Fatalf("PendingText: got %q, %v", text, ok)
	}

	if err := e.PointerDown(Point{X: 20, Y: 80}); err != nil {
		t.Fatalf("PointerDown failed: %v", err)
	}
	if _, ok := e.PendingText(); ok {
		t.Error("pending text should be consumed by the click")
	}
	if e.State() != Idle {
		t.Error("text placement should not start a gesture")
	}
	if countInked(doc.Working(), image.Rect(20, 30, 300, 90)) == 0 {
		t.Error("text not flattened onto the canvas")
	}
}

func TestEngine_SetPendingText(t *testing.T) {
	e := NewEngine(newTestDocument(t, solidImage(10, 10, white), 10, 10))

	if err := e.SetPendingText(TextStyle{Font: "gothic"}, "x"); !errors.Is(err, ErrUnknownFont) {
		t.Errorf("expected ErrUnknownFont, got %v", err)
	}
	if _, ok := e.PendingText(); ok {
		t.Error("invalid style should not stage text")
	}

	_ = e.SetPendingText(TextStyle{}, "x")
	_ = e.SetPendingText(TextStyle{}, "")
	if _, ok := e.PendingText(); ok {
		t.Error("empty text should clear the staged text")
	}

	_ = e.SetPendingText(TextStyle{}, "y")
	e.Cancel()
	if _, ok := e.PendingText(); ok {
		t.Error("Cancel should clear the staged text")
	}
}
