// Package design holds the page data of a card design and its sparse map of
// edited page images.
package design

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// ErrPageIndex is returned for a page index outside the design.
var ErrPageIndex = errors.New("page index out of range")

// Page is one page of a card.
type Page struct {
	Header string `json:"header"`
	Image  string `json:"image"` // URL, data URI or saved path
	Text   string `json:"text"`
	Footer string `json:"footer"`
}

// Design is an ordered set of pages plus the images that override them.
//
// A key in EditedPages means that page's image has been replaced; a missing
// key means the page's own Image is used. Design is safe for concurrent use.
type Design struct {
	mu sync.RWMutex

	ID          string
	Name        string
	Pages       []Page
	EditedPages map[int]string
}

// New creates a design with no edited pages.
func New(id, name string, pages []Page) *Design {
	return &Design{
		ID:          id,
		Name:        name,
		Pages:       append([]Page(nil), pages...),
		EditedPages: make(map[int]string),
	}
}

// Len returns the number of pages.
func (d *Design) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.Pages)
}

// Page returns page i.
func (d *Design) Page(i int) (Page, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.Pages) {
		return Page{}, fmt.Errorf("%w: %d of %d", ErrPageIndex, i, len(d.Pages))
	}
	return d.Pages[i], nil
}

// CommitPageEdit records img as the image of page i. No other entry changes.
func (d *Design) CommitPageEdit(i int, img string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.Pages) {
		return fmt.Errorf("%w: %d of %d", ErrPageIndex, i, len(d.Pages))
	}
	if d.EditedPages == nil {
		d.EditedPages = make(map[int]string)
	}
	d.EditedPages[i] = img
	return nil
}

// ResolvedImage returns the edited image of page i when there is one, and
// the page's own image otherwise.
func (d *Design) ResolvedImage(i int) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.Pages) {
		return "", fmt.Errorf("%w: %d of %d", ErrPageIndex, i, len(d.Pages))
	}
	if img, ok := d.EditedPages[i]; ok {
		return img, nil
	}
	return d.Pages[i].Image, nil
}

// ResolvedPages returns every page with edited images applied.
func (d *Design) ResolvedPages() []Page {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Page, len(d.Pages))
	for i, p := range d.Pages {
		if img, ok := d.EditedPages[i]; ok {
			p.Image = img
		}
		out[i] = p
	}
	return out
}

// Edited returns the indexes of edited pages in ascending order.
func (d *Design) Edited() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx := make([]int, 0, len(d.EditedPages))
	for i := range d.EditedPages {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

type designJSON struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Pages       []Page            `json:"pages"`
	EditedPages map[string]string `json:"editedPages"`
}

// MarshalJSON encodes the design with editedPages keyed by decimal index.
func (d *Design) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := designJSON{
		ID:          d.ID,
		Name:        d.Name,
		Pages:       d.Pages,
		EditedPages: make(map[string]string, len(d.EditedPages)),
	}
	if out.Pages == nil {
		out.Pages = []Page{}
	}
	for i, img := range d.EditedPages {
		out.EditedPages[strconv.Itoa(i)] = img
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a design. Keys of editedPages must be page indexes.
func (d *Design) UnmarshalJSON(data []byte) error {
	var in designJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	edited := make(map[int]string, len(in.EditedPages))
	for k, img := range in.EditedPages {
		i, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("editedPages key %q is not a page index", k)
		}
		if i < 0 || i >= len(in.Pages) {
			return fmt.Errorf("%w: editedPages key %d of %d", ErrPageIndex, i, len(in.Pages))
		}
		edited[i] = img
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.ID = in.ID
	d.Name = in.Name
	d.Pages = in.Pages
	d.EditedPages = edited
	return nil
}
