package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ironsheep/card-canvas/internal/canvas"
	"github.com/ironsheep/card-canvas/internal/design"
	"github.com/ironsheep/card-canvas/internal/imaging"
	"github.com/ironsheep/card-canvas/internal/remote"
	"github.com/ironsheep/card-canvas/internal/session"
	"github.com/ironsheep/card-canvas/internal/templates"
)

// defaultPreviewSize bounds images returned to the agent.
const defaultPreviewSize = 1024

func (s *Server) session(req mcp.CallToolRequest) (*session.Session, error) {
	id, err := req.RequireString("sessionId")
	if err != nil {
		return nil, err
	}
	return s.sessions.Get(id)
}

// withSession resolves the session and turns failures into tool errors.
func (s *Server) withSession(req mcp.CallToolRequest, fn func(*session.Session) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	sess, err := s.session(req)
	if err != nil {
		return s.errorResult(req.Params.Name, err), nil
	}
	res, err := fn(sess)
	if err != nil {
		return s.errorResult(req.Params.Name, err), nil
	}
	return res, nil
}

// snapshotResult runs op and answers with the session state.
func (s *Server) snapshotResult(req mcp.CallToolRequest, op func(*session.Session) error) (*mcp.CallToolResult, error) {
	return s.withSession(req, func(sess *session.Session) (*mcp.CallToolResult, error) {
		if err := op(sess); err != nil {
			return nil, err
		}
		return jsonResult(sess.Snapshot())
	})
}

// Sessions

func (s *Server) handleCanvasOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := req.GetInt("page", 0)

	var d *design.Design
	switch raw, templateID := req.GetString("design", ""), req.GetString("templateId", ""); {
	case raw != "":
		d = &design.Design{}
		if err := json.Unmarshal([]byte(raw), d); err != nil {
			return s.errorResult("canvas_open", fmt.Errorf("invalid design: %w", err)), nil
		}
	case templateID != "" && s.templates != nil:
		var err error
		if d, err = s.templates.NewDesign(ctx, templateID); err != nil {
			return s.errorResult("canvas_open", err), nil
		}
	default:
		return s.errorResult("canvas_open", errors.New("design or templateId is required")), nil
	}

	sess, err := s.sessions.Open(ctx, d, page)
	if err != nil {
		return s.errorResult("canvas_open", err), nil
	}
	return jsonResult(sess.Snapshot())
}

func (s *Server) handleCanvasStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, func(*session.Session) error { return nil })
}

func (s *Server) handleCanvasClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("sessionId")
	if err != nil {
		return s.errorResult("canvas_close", err), nil
	}
	if err := s.sessions.Close(id); err != nil {
		return s.errorResult("canvas_close", err), nil
	}
	return textResult(fmt.Sprintf("Session %s closed", id)), nil
}

// Input

func (s *Server) handleCanvasPointer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, func(sess *session.Session) error {
		events, err := pointerEvents(req)
		if err != nil {
			return err
		}
		for i, ev := range events {
			if err := sess.Pointer(ev); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		}
		return nil
	})
}

// pointerEvents reads the events array, or the single event described by
// type, x and y.
func pointerEvents(req mcp.CallToolRequest) ([]session.PointerEvent, error) {
	if raw := req.GetString("events", ""); raw != "" {
		var events []session.PointerEvent
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return nil, fmt.Errorf("invalid events: %w", err)
		}
		return events, nil
	}

	kind := req.GetString("type", "")
	if kind == "" {
		return nil, errors.New("type or events is required")
	}
	ev := session.PointerEvent{
		Kind: session.PointerKind(kind),
		X:    req.GetFloat("x", 0),
		Y:    req.GetFloat("y", 0),
	}
	args := req.GetArguments()
	if _, ok := args["displayWidth"]; ok {
		ev.Rect = &canvas.ClientRect{
			Left:   req.GetFloat("displayLeft", 0),
			Top:    req.GetFloat("displayTop", 0),
			Width:  req.GetFloat("displayWidth", 0),
			Height: req.GetFloat("displayHeight", 0),
		}
	}
	return []session.PointerEvent{ev}, nil
}

func (s *Server) handleCanvasSetTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, func(sess *session.Session) error {
		tool, err := canvas.ParseTool(req.GetString("tool", ""))
		if err != nil {
			return err
		}
		hex, width := req.GetString("color", ""), req.GetFloat("width", 0)
		if hex != "" || width != 0 {
			style := canvas.InkStyle{Width: canvas.DefaultInkWidth}
			style.Color.A = 0xff
			if hex != "" {
				if style.Color, err = imaging.ParseHexColor(hex); err != nil {
					return err
				}
			}
			if width != 0 {
				style.Width = width
			}
			if err := sess.SetInk(style); err != nil {
				return err
			}
		}
		return sess.SetTool(tool)
	})
}

func (s *Server) handleCanvasText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, func(sess *session.Session) error {
		style := canvas.TextStyle{
			Font:  req.GetString("font", ""),
			Size:  req.GetFloat("size", 0),
			Color: req.GetString("color", ""),
		}
		if err := sess.SetPendingText(style, req.GetString("text", "")); err != nil {
			return err
		}
		return sess.SetTool(canvas.ToolText)
	})
}

func (s *Server) handleCanvasEraseRect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, func(sess *session.Session) error {
		x, y := req.GetInt("x", 0), req.GetInt("y", 0)
		w, h := req.GetInt("width", 0), req.GetInt("height", 0)
		if w <= 0 || h <= 0 {
			return errors.New("width and height must be positive")
		}
		return sess.EraseRegion(image.Rect(x, y, x+w, y+h))
	})
}

// Filters

func (s *Server) handleCanvasFilters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, func(sess *session.Session) error {
		f := sess.Snapshot().Filters
		for name, dst := range map[string]*int{
			"brightness": &f.Brightness,
			"contrast":   &f.Contrast,
			"saturation": &f.Saturation,
		} {
			if _, ok := req.GetArguments()[name]; ok {
				*dst = int(math.Round(req.GetFloat(name, 100)))
			}
		}
		return sess.SetFilters(f)
	})
}

func (s *Server) handleCanvasResetFilters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, (*session.Session).ResetFilters)
}

func (s *Server) handleCanvasResetAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, (*session.Session).ResetAll)
}

// Output and remote edits

func (s *Server) handleCanvasBuildMask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withSession(req, func(sess *session.Session) (*mcp.CallToolResult, error) {
		mask, err := sess.Mask()
		if err != nil {
			return nil, err
		}
		caption := "Mask has no transparent pixels; an edit would regenerate the whole image."
		if mask.HasTransparency {
			caption = "Mask is transparent where the page was erased."
		}
		return imageResult(caption, imaging.Thumbnail(mask.Image, req.GetInt("maxSize", defaultPreviewSize)))
	})
}

func (s *Server) handleCanvasExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withSession(req, func(sess *session.Session) (*mcp.CallToolResult, error) {
		img, err := sess.Working()
		if err != nil {
			return nil, err
		}
		size := sess.Snapshot().Size
		rect, err := exportRect(req, img.Bounds())
		if err != nil {
			return nil, err
		}

		var view image.Image = img
		caption := fmt.Sprintf("Page %d at %dx%d logical pixels", sess.Page(), size.W, size.H)
		if rect != img.Bounds() {
			if view, err = imaging.Crop(img, rect); err != nil {
				return nil, err
			}
			caption += fmt.Sprintf(", region (%d,%d)-(%d,%d)", rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y)
		}
		view = imaging.Thumbnail(view, req.GetInt("maxSize", defaultPreviewSize))

		if spacing := req.GetInt("grid", 0); spacing > 0 {
			grid, err := imaging.GridOverlay(view, imaging.GridOptions{
				Origin:  rect.Min,
				Scale:   float64(view.Bounds().Dx()) / float64(rect.Dx()),
				Spacing: spacing,
				Labels:  req.GetBool("gridLabels", true),
			})
			if err != nil {
				return nil, err
			}
			view = grid
			caption += fmt.Sprintf(", grid every %d px", spacing)
		}
		return imageResult(caption, view)
	})
}

// exportRect picks the part of the page canvas_export returns: an explicit
// x/y/width/height rectangle, a named region, or the whole page.
func exportRect(req mcp.CallToolRequest, bounds image.Rectangle) (image.Rectangle, error) {
	width, height := req.GetInt("width", 0), req.GetInt("height", 0)
	if width > 0 || height > 0 {
		x, y := req.GetInt("x", 0), req.GetInt("y", 0)
		return image.Rect(x, y, x+width, y+height), nil
	}
	return imaging.RegionRect(bounds, req.GetString("region", ""))
}

func (s *Server) handleCanvasSampleColor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withSession(req, func(sess *session.Session) (*mcp.CallToolResult, error) {
		c, err := sess.SampleColor(req.GetInt("x", 0), req.GetInt("y", 0))
		if err != nil {
			return nil, err
		}
		return jsonResult(c)
	})
}

func (s *Server) handleCanvasEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.snapshotResult(req, func(sess *session.Session) error {
		dr := session.DispatchRequest{
			Prompt:     req.GetString("prompt", ""),
			WholeImage: req.GetBool("wholeImage", false),
		}
		if name := req.GetString("backend", ""); name != "" {
			kind, err := remote.ParseKind(name)
			if err != nil {
				return err
			}
			dr.Backend = kind
		}
		if ref := req.GetString("extraImage", ""); ref != "" {
			if s.loader == nil {
				return errors.New("extraImage is not supported")
			}
			img, err := s.loader.LoadDrawable(ctx, ref)
			if err != nil {
				return err
			}
			dr.ExtraImage = img
		}
		return sess.Dispatch(ctx, dr)
	})
}

func (s *Server) handleCanvasSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withSession(req, func(sess *session.Session) (*mcp.CallToolResult, error) {
		path, err := sess.Save(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResult(map[string]any{
			"filePath":    path,
			"page":        sess.Page(),
			"editedPages": sess.Design().Edited(),
		})
	})
}

// Templates

func (s *Server) handleTemplateList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.templates.List(ctx, req.GetString("category", ""))
	if err != nil {
		return s.errorResult("template_list", err), nil
	}
	if list == nil {
		list = []templates.Template{}
	}
	return jsonResult(list)
}

func (s *Server) handleTemplateCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := s.templates.Categories(ctx)
	if err != nil {
		return s.errorResult("template_categories", err), nil
	}
	return jsonResult(cats)
}

func (s *Server) handleTemplateGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return s.errorResult("template_get", err), nil
	}
	t, err := s.templates.Get(ctx, id)
	if err != nil {
		return s.errorResult("template_get", err), nil
	}
	return jsonResult(t)
}

func (s *Server) handleTemplateUpsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("template")
	if err != nil {
		return s.errorResult("template_upsert", err), nil
	}
	var t templates.Template
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return s.errorResult("template_upsert", fmt.Errorf("invalid template: %w", err)), nil
	}
	saved, err := s.templates.Upsert(ctx, t)
	if err != nil {
		return s.errorResult("template_upsert", err), nil
	}
	return jsonResult(saved)
}

func (s *Server) handleTemplateRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return s.errorResult("template_remove", err), nil
	}
	if err := s.templates.Remove(ctx, id); err != nil {
		return s.errorResult("template_remove", err), nil
	}
	return textResult(fmt.Sprintf("Template %s removed", id)), nil
}
