package server

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ironsheep/card-canvas/internal/imaging"
)

func boolPtr(v bool) *bool { return &v }

func sessionArg() mcp.ToolOption {
	return mcp.WithString("sessionId", mcp.Description("Session id returned by canvas_open"), mcp.Required())
}

// toolDefinitions returns every tool with its handler.
func (s *Server) toolDefinitions() []mcpserver.ServerTool {
	tools := []mcpserver.ServerTool{
		// Sessions
		{
			Tool: mcp.NewTool("canvas_open",
				mcp.WithDescription("Open one page of a card design for editing. Pass either a templateId or a design JSON document. Returns the session state including its id."),
				mcp.WithString("templateId", mcp.Description("Template to start a new design from")),
				mcp.WithString("design", mcp.Description(`Design JSON: {"id","name","pages":[{"header","image","text","footer"}],"editedPages":{"1":"..."}}`)),
				mcp.WithNumber("page", mcp.Description("Zero-based page index (default 0)")),
			),
			Handler: s.handleCanvasOpen,
		},
		{
			Tool: mcp.NewTool("canvas_status",
				mcp.WithDescription("Return the state of a session: tool, gesture, filters, pending text, whether anything was erased or drawn, and whether a remote edit is in flight."),
				sessionArg(),
			),
			Handler: s.handleCanvasStatus,
		},
		{
			Tool: mcp.NewTool("canvas_close",
				mcp.WithDescription("Close a session. A remote edit still in flight is discarded when it returns."),
				sessionArg(),
			),
			Handler: s.handleCanvasClose,
		},

		// Input
		{
			Tool: mcp.NewTool("canvas_pointer",
				mcp.WithDescription("Send pointer input. Either a single event (type, x, y) or a JSON array in events. With displayWidth/displayHeight set, x and y are client coordinates inside that display box and are scaled to the logical canvas; otherwise they are logical pixels."),
				sessionArg(),
				mcp.WithString("type", mcp.Description("Event type: down, move, up, leave")),
				mcp.WithNumber("x", mcp.Description("X coordinate")),
				mcp.WithNumber("y", mcp.Description("Y coordinate")),
				mcp.WithString("events", mcp.Description(`JSON array of events [{"type":"down","x":1,"y":2,"rect":{"left":0,"top":0,"width":100,"height":130}}, ...]`)),
				mcp.WithNumber("displayLeft", mcp.Description("Display box left edge")),
				mcp.WithNumber("displayTop", mcp.Description("Display box top edge")),
				mcp.WithNumber("displayWidth", mcp.Description("Display box width")),
				mcp.WithNumber("displayHeight", mcp.Description("Display box height")),
			),
			Handler: s.handleCanvasPointer,
		},
		{
			Tool: mcp.NewTool("canvas_set_tool",
				mcp.WithDescription("Select the drawing tool: none, erase (brush), handwriting (ink) or text. Color and width set the handwriting ink."),
				sessionArg(),
				mcp.WithString("tool", mcp.Description("Tool name"), mcp.Required()),
				mcp.WithString("color", mcp.Description("Ink color hex, e.g. #1d4ed8")),
				mcp.WithNumber("width", mcp.Description("Ink width in logical pixels")),
			),
			Handler: s.handleCanvasSetTool,
		},
		{
			Tool: mcp.NewTool("canvas_text",
				mcp.WithDescription("Stage text and select the text tool. The next pointer down places the text with its baseline at the point."),
				sessionArg(),
				mcp.WithString("text", mcp.Description("Text to place; newlines start new lines. Empty clears the staged text."), mcp.Required()),
				mcp.WithString("font", mcp.Description("sans, sans-bold, sans-italic or mono (default sans)")),
				mcp.WithNumber("size", mcp.Description("Font size in logical pixels (default 96)")),
				mcp.WithString("color", mcp.Description("Text color hex (default #000000)")),
			),
			Handler: s.handleCanvasText,
		},
		{
			Tool: mcp.NewTool("canvas_erase_rect",
				mcp.WithDescription("Erase a rectangle of the page, making it transparent for inpainting."),
				sessionArg(),
				mcp.WithNumber("x", mcp.Description("Left edge"), mcp.Required()),
				mcp.WithNumber("y", mcp.Description("Top edge"), mcp.Required()),
				mcp.WithNumber("width", mcp.Description("Width"), mcp.Required()),
				mcp.WithNumber("height", mcp.Description("Height"), mcp.Required()),
				mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
			),
			Handler: s.handleCanvasEraseRect,
		},

		// Filters
		{
			Tool: mcp.NewTool("canvas_filters",
				mcp.WithDescription("Set brightness, contrast and saturation in percent (0-200, 100 = unchanged). Omitted values keep their current setting. Filters always apply to the original page image."),
				sessionArg(),
				mcp.WithNumber("brightness", mcp.Description("Brightness percent")),
				mcp.WithNumber("contrast", mcp.Description("Contrast percent")),
				mcp.WithNumber("saturation", mcp.Description("Saturation percent")),
			),
			Handler: s.handleCanvasFilters,
		},
		{
			Tool: mcp.NewTool("canvas_reset_filters",
				mcp.WithDescription("Restore neutral filters. Erasures, ink and text are kept."),
				sessionArg(),
			),
			Handler: s.handleCanvasResetFilters,
		},
		{
			Tool: mcp.NewTool("canvas_reset_all",
				mcp.WithDescription("Restore the page image with neutral filters, dropping every erasure, ink stroke and text."),
				sessionArg(),
				mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
			),
			Handler: s.handleCanvasResetAll,
		},

		// Output and remote edits
		{
			Tool: mcp.NewTool("canvas_build_mask",
				mcp.WithDescription("Build the inpainting mask: the original page where the canvas is opaque, transparent where it was erased."),
				sessionArg(),
				mcp.WithNumber("maxSize", mcp.Description("Scale the returned image so neither side exceeds this many pixels (default 1024, 0 = full size)")),
			),
			Handler: s.handleCanvasBuildMask,
		},
		{
			Tool: mcp.NewTool("canvas_export",
				mcp.WithDescription("Return the flattened working canvas as a PNG image, optionally cropped to a region and overlaid with a coordinate grid."),
				sessionArg(),
				mcp.WithNumber("maxSize", mcp.Description("Scale the returned image so neither side exceeds this many pixels (default 1024, 0 = full size)")),
				mcp.WithString("region", mcp.Description("Named part of the page: "+strings.Join(imaging.Regions, ", "))),
				mcp.WithNumber("x", mcp.Description("Left edge of a crop rectangle in logical pixels (used with width and height)")),
				mcp.WithNumber("y", mcp.Description("Top edge of a crop rectangle in logical pixels")),
				mcp.WithNumber("width", mcp.Description("Crop rectangle width in logical pixels")),
				mcp.WithNumber("height", mcp.Description("Crop rectangle height in logical pixels")),
				mcp.WithNumber("grid", mcp.Description("Draw grid lines every N logical pixels, to help pick coordinates")),
				mcp.WithBoolean("gridLabels", mcp.Description("Label grid lines with their logical coordinates (default true)")),
			),
			Handler: s.handleCanvasExport,
		},
		{
			Tool: mcp.NewTool("canvas_sample_color",
				mcp.WithDescription("Read the color of one logical pixel of the working canvas, including alpha."),
				sessionArg(),
				mcp.WithNumber("x", mcp.Description("X coordinate"), mcp.Required()),
				mcp.WithNumber("y", mcp.Description("Y coordinate"), mcp.Required()),
			),
			Handler: s.handleCanvasSampleColor,
		},
		{
			Tool: mcp.NewTool("canvas_edit",
				mcp.WithDescription("Send the page to an image edit backend. When something was erased the mask is sent too, so only that area is regenerated. The result replaces the page image; drawings and filters are reset. Only one edit per session can be in flight."),
				sessionArg(),
				mcp.WithString("prompt", mcp.Description("Edit instruction"), mcp.Required()),
				mcp.WithString("backend", mcp.Description("gemini, openai-mask or openai-prompt (default: server setting)")),
				mcp.WithString("extraImage", mcp.Description("Optional reference image: URL, data URL or path")),
				mcp.WithBoolean("wholeImage", mcp.Description("Ignore erasures and edit the whole image")),
			),
			Handler: s.handleCanvasEdit,
		},
		{
			Tool: mcp.NewTool("canvas_save",
				mcp.WithDescription("Store the flattened page and record it as the page's edited image in the design. Returns the stored path."),
				sessionArg(),
			),
			Handler: s.handleCanvasSave,
		},
	}

	if s.templates != nil {
		tools = append(tools, s.templateTools()...)
	}
	return tools
}

func (s *Server) templateTools() []mcpserver.ServerTool {
	return []mcpserver.ServerTool{
		{
			Tool: mcp.NewTool("template_list",
				mcp.WithDescription("List card templates sorted by name, optionally in one category."),
				mcp.WithString("category", mcp.Description("Category name (case-insensitive)")),
			),
			Handler: s.handleTemplateList,
		},
		{
			Tool: mcp.NewTool("template_categories",
				mcp.WithDescription("List template categories with their template counts."),
			),
			Handler: s.handleTemplateCategories,
		},
		{
			Tool: mcp.NewTool("template_get",
				mcp.WithDescription("Get one template with its pages."),
				mcp.WithString("id", mcp.Description("Template id"), mcp.Required()),
			),
			Handler: s.handleTemplateGet,
		},
		{
			Tool: mcp.NewTool("template_upsert",
				mcp.WithDescription("Create or replace a template. An id is generated when the template has none."),
				mcp.WithString("template", mcp.Description(`Template JSON: {"id","name","category","thumbnail","pages":[{"header","image","text","footer"}]}`), mcp.Required()),
			),
			Handler: s.handleTemplateUpsert,
		},
		{
			Tool: mcp.NewTool("template_remove",
				mcp.WithDescription("Delete a template."),
				mcp.WithString("id", mcp.Description("Template id"), mcp.Required()),
				mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
			),
			Handler: s.handleTemplateRemove,
		},
	}
}
