// Package server exposes card-canvas editing sessions and the template
// registry as MCP tools over stdio.
//
// An agent opens a page with canvas_open and receives a session id that
// every other canvas_* tool takes. Canvas coordinates are logical pixels
// unless a display box is supplied, in which case they are client
// coordinates relative to that box.
//
// # Tools
//
// Sessions:
//   - canvas_open, canvas_status, canvas_close
//
// Input:
//   - canvas_pointer: pointer down/move/up/leave, singly or as a batch
//   - canvas_set_tool: none, erase, handwriting, text (with ink style)
//   - canvas_text: stage text for the next pointer down
//   - canvas_erase_rect: erase a rectangle
//
// Filters:
//   - canvas_filters, canvas_reset_filters, canvas_reset_all
//
// Output and remote edits:
//   - canvas_build_mask, canvas_export, canvas_sample_color
//   - canvas_edit: send the page (and mask) to an edit backend
//   - canvas_save: store the page and record it in the design
//
// Templates:
//   - template_list, template_get, template_upsert, template_remove,
//     template_categories
//
// Tool failures are reported as tool results with IsError set, so the agent
// sees the message; protocol errors are reserved for malformed calls.
package server
