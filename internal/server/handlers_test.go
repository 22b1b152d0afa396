package server

import (
	"encoding/json"
	"image/color"
	"strings"
	"testing"

	"github.com/ironsheep/card-canvas/internal/canvas"
	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/templates"
)

func TestCanvasOpen(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"template", map[string]any{"templateId": "thanks"}, false},
		{"inline design", map[string]any{"design": `{"id":"d","pages":[{"image":"` + whiteDataURL(t) + `"}]}`}, false},
		{"nothing", map[string]any{}, true},
		{"unknown template", map[string]any{"templateId": "nope"}, true},
		{"bad page", map[string]any{"templateId": "thanks", "page": 3}, true},
		{"bad design", map[string]any{"design": "{"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, s, "canvas_open", tt.args)
			if res.IsError != tt.wantErr {
				t.Errorf("IsError: got %v, want %v (%s)", res.IsError, tt.wantErr, resultText(t, res))
			}
		})
	}
}

func whiteDataURL(t *testing.T) string {
	t.Helper()
	s, err := imaging.EncodeDataURL(createInMemoryImage(4, 4, color.White))
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}
	return s
}

func TestCanvasPointer_EraseStroke(t *testing.T) {
	s, _ := newTestServer(t)
	id := openCanvas(t, s)

	expectOK(t, callTool(t, s, "canvas_set_tool", map[string]any{"sessionId": id, "tool": "erase"}))

	// A 15x15 display box shows the 30x30 canvas at half size.
	snap := expectSnapshot(t, callTool(t, s, "canvas_pointer", map[string]any{
		"sessionId": id, "type": "down", "x": 1.0, "y": 7.5,
		"displayWidth": 15.0, "displayHeight": 15.0,
	}))
	if snap.Gesture != "active" {
		t.Errorf("gesture after down: %s", snap.Gesture)
	}

	snap = expectSnapshot(t, callTool(t, s, "canvas_pointer", map[string]any{
		"sessionId": id,
		"events":    `[{"type":"move","x":28,"y":15},{"type":"leave"}]`,
	}))
	if snap.Gesture != "idle" || !snap.HasAnnotations {
		t.Errorf("after stroke: %+v", snap)
	}

	text := expectOK(t, callTool(t, s, "canvas_sample_color", map[string]any{"sessionId": id, "x": 15, "y": 15}))
	var c imaging.ColorResult
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		t.Fatalf("sample result: %v", err)
	}
	if c.RGBA.A != 0 {
		t.Errorf("alpha on the stroke: got %d, want 0", c.RGBA.A)
	}
}

func TestCanvasPointer_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	id := openCanvas(t, s)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no event", map[string]any{"sessionId": id}, "required"},
		{"zero display", map[string]any{"sessionId": id, "type": "down", "displayWidth": 0.0, "displayHeight": 10.0}, canvas.ErrCanvasNotReady.Error()},
		{"bad batch", map[string]any{"sessionId": id, "events": "[{"}, "invalid events"},
		{"unknown session", map[string]any{"sessionId": "nope", "type": "down"}, "not found"},
		{"missing session", map[string]any{"type": "down"}, "sessionId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, s, "canvas_pointer", tt.args)
			if !res.IsError {
				t.Fatal("expected tool error")
			}
			if text := resultText(t, res); !strings.Contains(text, tt.want) {
				t.Errorf("error %q should mention %q", text, tt.want)
			}
		})
	}
}

func TestCanvasTextAndHandwriting(t *testing.T) {
	s, _ := newTestServer(t)
	id := openCanvas(t, s)

	snap := expectSnapshot(t, callTool(t, s, "canvas_text", map[string]any{
		"sessionId": id, "text": "Hi", "font": "mono", "size": 10.0, "color": "#ff0000",
	}))
	if snap.Tool != "text" || snap.PendingText != "Hi" {
		t.Errorf("after canvas_text: %+v", snap)
	}
	snap = expectSnapshot(t, callTool(t, s, "canvas_pointer", map[string]any{"sessionId": id, "type": "down", "x": 2.0, "y": 20.0}))
	if snap.PendingText != "" || !snap.HasAnnotations {
		t.Errorf("text should be committed on click: %+v", snap)
	}

	res := callTool(t, s, "canvas_set_tool", map[string]any{"sessionId": id, "tool": "ink", "color": "nope"})
	if !res.IsError {
		t.Error("expected error for a bad ink colour")
	}
	snap = expectSnapshot(t, callTool(t, s, "canvas_set_tool", map[string]any{"sessionId": id, "tool": "ink", "color": "#00ff00", "width": 4.0}))
	if snap.Tool != "handwriting" {
		t.Errorf("tool: got %s", snap.Tool)
	}
}

func TestCanvasFilters(t *testing.T) {
	s, _ := newTestServer(t)
	id := openCanvas(t, s)

	snap := expectSnapshot(t, callTool(t, s, "canvas_filters", map[string]any{"sessionId": id, "brightness": 150.0}))
	want := canvas.Filters{Brightness: 150, Contrast: 100, Saturation: 100}
	if snap.Filters != want {
		t.Errorf("filters: got %+v, want %+v", snap.Filters, want)
	}

	snap = expectSnapshot(t, callTool(t, s, "canvas_filters", map[string]any{"sessionId": id, "contrast": 50.0}))
	want.Contrast = 50
	if snap.Filters != want {
		t.Errorf("omitted values should be kept: got %+v", snap.Filters)
	}

	res := callTool(t, s, "canvas_filters", map[string]any{"sessionId": id, "saturation": 250.0})
	if !res.IsError {
		t.Error("expected range error")
	}

	snap = expectSnapshot(t, callTool(t, s, "canvas_reset_filters", map[string]any{"sessionId": id}))
	if snap.Filters != canvas.NeutralFilters {
		t.Errorf("after reset: %+v", snap.Filters)
	}
}

func TestCanvasEraseMaskEdit(t *testing.T) {
	s, editor := newTestServer(t)
	id := openCanvas(t, s)

	expectSnapshot(t, callTool(t, s, "canvas_erase_rect", map[string]any{"sessionId": id, "x": 5, "y": 5, "width": 10, "height": 10}))

	res := callTool(t, s, "canvas_build_mask", map[string]any{"sessionId": id})
	if !strings.Contains(expectOK(t, res), "transparent where") {
		t.Errorf("caption: %s", resultText(t, res))
	}
	mask := decodeImageContent(t, res)
	if _, _, _, a := mask.At(10, 10).RGBA(); a != 0 {
		t.Errorf("mask alpha in erased area: got %d", a)
	}

	snap := expectSnapshot(t, callTool(t, s, "canvas_edit", map[string]any{"sessionId": id, "prompt": "a sun"}))
	if snap.HasAnnotations {
		t.Error("edit result should replace the erased canvas")
	}
	if len(editor.requests) != 1 || editor.requests[0].Mask == nil || editor.requests[0].Prompt != "a sun" {
		t.Fatalf("editor requests: %+v", editor.requests)
	}

	img := decodeImageContent(t, callTool(t, s, "canvas_export", map[string]any{"sessionId": id, "maxSize": 0}))
	if img.Bounds().Dx() != 30 {
		t.Errorf("export width: got %d, want 30", img.Bounds().Dx())
	}
	if r, g, b, _ := img.At(10, 10).RGBA(); r>>8 > 2 || g>>8 > 2 || b>>8 < 250 {
		t.Errorf("pixel after edit: got (%d,%d,%d), want blue", r>>8, g>>8, b>>8)
	}

	thumb := decodeImageContent(t, callTool(t, s, "canvas_export", map[string]any{"sessionId": id, "maxSize": 10}))
	if thumb.Bounds().Dx() != 10 {
		t.Errorf("preview width: got %d, want 10", thumb.Bounds().Dx())
	}

	res = callTool(t, s, "canvas_edit", map[string]any{"sessionId": id, "prompt": "x", "backend": "dall-e"})
	if !res.IsError {
		t.Error("expected error for unknown backend")
	}
}

func TestCanvasSaveAndClose(t *testing.T) {
	s, _ := newTestServer(t)
	id := openCanvas(t, s)

	text := expectOK(t, callTool(t, s, "canvas_save", map[string]any{"sessionId": id}))
	var saved struct {
		FilePath    string `json:"filePath"`
		EditedPages []int  `json:"editedPages"`
	}
	if err := json.Unmarshal([]byte(text), &saved); err != nil {
		t.Fatalf("save result: %v", err)
	}
	if saved.FilePath != "/saved/page.png" || len(saved.EditedPages) != 1 || saved.EditedPages[0] != 0 {
		t.Errorf("save result: %+v", saved)
	}

	expectOK(t, callTool(t, s, "canvas_reset_all", map[string]any{"sessionId": id}))
	expectOK(t, callTool(t, s, "canvas_close", map[string]any{"sessionId": id}))
	if res := callTool(t, s, "canvas_status", map[string]any{"sessionId": id}); !res.IsError {
		t.Error("status after close should fail")
	}
	if res := callTool(t, s, "canvas_close", map[string]any{"sessionId": id}); !res.IsError {
		t.Error("second close should fail")
	}
}

func TestTemplateTools(t *testing.T) {
	s, _ := newTestServer(t)

	text := expectOK(t, callTool(t, s, "template_upsert", map[string]any{
		"template": `{"name":"Get Well","category":"Health","pages":[{"header":"Front","image":"a.png"}]}`,
	}))
	var created templates.Template
	if err := json.Unmarshal([]byte(text), &created); err != nil {
		t.Fatalf("upsert result: %v", err)
	}
	if created.ID == "" {
		t.Fatal("upsert should assign an id")
	}

	var list []templates.Template
	if err := json.Unmarshal([]byte(expectOK(t, callTool(t, s, "template_list", map[string]any{"category": "health"}))), &list); err != nil {
		t.Fatalf("list result: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("health templates: %+v", list)
	}

	var cats []templates.Category
	if err := json.Unmarshal([]byte(expectOK(t, callTool(t, s, "template_categories", nil))), &cats); err != nil {
		t.Fatalf("categories result: %v", err)
	}
	if len(cats) != 2 {
		t.Errorf("categories: %+v", cats)
	}

	expectOK(t, callTool(t, s, "template_get", map[string]any{"id": created.ID}))
	expectOK(t, callTool(t, s, "template_remove", map[string]any{"id": created.ID}))
	if res := callTool(t, s, "template_get", map[string]any{"id": created.ID}); !res.IsError {
		t.Error("get after remove should fail")
	}
	if res := callTool(t, s, "template_upsert", map[string]any{"template": `{"name":""}`}); !res.IsError {
		t.Error("invalid template should fail")
	}
}

func TestCanvasExport_RegionAndGrid(t *testing.T) {
	s, _ := newTestServer(t)
	id := openCanvas(t, s)

	tests := []struct {
		name  string
		args  map[string]any
		wantW int
		wantH int
	}{
		{"named region", map[string]any{"region": "top-left"}, 15, 15},
		{"rectangle", map[string]any{"x": 5, "y": 10, "width": 20, "height": 8}, 20, 8},
		{"grid on full page", map[string]any{"grid": 10, "gridLabels": false}, 30, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"sessionId": id, "maxSize": 0}
			for k, v := range tt.args {
				args[k] = v
			}
			img := decodeImageContent(t, callTool(t, s, "canvas_export", args))
			if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
				t.Errorf("bounds: got %v, want %dx%d", img.Bounds(), tt.wantW, tt.wantH)
			}
		})
	}

	img := decodeImageContent(t, callTool(t, s, "canvas_export", map[string]any{
		"sessionId": id, "maxSize": 0, "grid": 10, "gridLabels": false,
	}))
	if r, g, b, _ := img.At(10, 5).RGBA(); r>>8 < 250 || g>>8 > 200 || b>>8 > 200 {
		t.Errorf("grid line at (10,5): got (%d,%d,%d), want reddish", r>>8, g>>8, b>>8)
	}

	for _, args := range []map[string]any{
		{"region": "middle"},
		{"x": 20, "y": 0, "width": 20, "height": 5},
		{"grid": 1, "maxSize": 10},
	} {
		args["sessionId"] = id
		if res := callTool(t, s, "canvas_export", args); !res.IsError {
			t.Errorf("expected error for %v", args)
		}
	}
}
