// Package navigation keeps the page order of a form and the trailing Next/Submit
// field of every page consistent with it.
//
// Every transition returns a new page slice; callers reconcile the field lists
// of affected pages with Reconcile using the verdict from ExpectedButton or Buttons.
// The same functions run on the server (authoritative, inside the transaction
// that changes the order) and in the editor, so both sides agree.
package navigation

import (
	"errors"
	"fmt"
	"sort"

	"form-builder-backend/pkg/fields"
)

var (
	ErrPageNotFound  = errors.New("page not found")
	ErrInvalidOrder  = errors.New("page order must list every page exactly once")
	ErrLastPageGuard = errors.New("a form must keep at least one page")
)

// Page is the navigation view of a form page.
type Page struct {
	ID         uint   `json:"id"`
	FormID     uint   `json:"form_id"`
	PageNumber int    `json:"page_number"`
	SortOrder  int    `json:"sort_order"`
	Title      string `json:"page_title"`
}

// SortUpdate is one entry of a drag-and-drop reorder request.
type SortUpdate struct {
	ID        uint `json:"id" binding:"required"`
	SortOrder int  `json:"sort_order"`
}

// Sort returns a copy of pages ordered by sort order, ties broken by page number.
func Sort(pages []Page) []Page {
	out := append([]Page(nil), pages...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].PageNumber < out[j].PageNumber
	})
	return out
}

// Order returns the page ids in navigation order.
func Order(pages []Page) []uint {
	sorted := Sort(pages)
	ids := make([]uint, len(sorted))
	for i, p := range sorted {
		ids[i] = p.ID
	}
	return ids
}

// Terminal returns the id of the last page in order, or false for an empty form.
func Terminal(order []uint) (uint, bool) {
	if len(order) == 0 {
		return 0, false
	}
	return order[len(order)-1], true
}

// ExpectedButton returns the navigation type the page's trailing field must have.
// The end pseudo-page and pages outside the order get none ("").
func ExpectedButton(pageID uint, order []uint) fields.Type {
	if pageID == fields.EndPage {
		return ""
	}
	for i, id := range order {
		if id == pageID {
			if i == len(order)-1 {
				return fields.TypeSubmit
			}
			return fields.TypeNext
		}
	}
	return ""
}

// Buttons returns the verdict for every page in order.
func Buttons(order []uint) map[uint]fields.Type {
	out := make(map[uint]fields.Type, len(order))
	for _, id := range order {
		out[id] = ExpectedButton(id, order)
	}
	return out
}

// nextPageNumber returns a page number never used by pages; numbers are
// durable route identifiers and are not recycled.
func nextPageNumber(pages []Page) int {
	max := 0
	for _, p := range pages {
		if p.PageNumber > max {
			max = p.PageNumber
		}
	}
	return max + 1
}

func nextSortOrder(pages []Page) int {
	if len(pages) == 0 {
		return 0
	}
	max := pages[0].SortOrder
	for _, p := range pages[1:] {
		if p.SortOrder > max {
			max = p.SortOrder
		}
	}
	return max + 1
}

// Add appends page after every existing page. A zero page number or sort order
// is assigned from the existing pages.
func Add(pages []Page, page Page) ([]Page, Page) {
	if page.PageNumber == 0 {
		page.PageNumber = nextPageNumber(pages)
	}
	page.SortOrder = nextSortOrder(pages)
	out := append(append([]Page(nil), pages...), page)
	return Sort(out), page
}

// Reorder assigns sort orders by the position of each id. ids must be a
// permutation of the page ids. Page numbers are left untouched.
func Reorder(pages []Page, ids []uint) ([]Page, error) {
	if len(ids) != len(pages) {
		return nil, ErrInvalidOrder
	}
	position := make(map[uint]int, len(ids))
	for i, id := range ids {
		if _, dup := position[id]; dup {
			return nil, ErrInvalidOrder
		}
		position[id] = i
	}
	out := make([]Page, len(pages))
	for i, p := range pages {
		pos, ok := position[p.ID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown page %d", ErrInvalidOrder, p.ID)
		}
		p.SortOrder = pos
		out[i] = p
	}
	return Sort(out), nil
}

// ApplySortOrders applies explicit {id, sort_order} pairs, then compacts the
// resulting order to 0..n-1.
func ApplySortOrders(pages []Page, updates []SortUpdate) ([]Page, error) {
	byID := make(map[uint]int, len(updates))
	for _, u := range updates {
		byID[u.ID] = u.SortOrder
	}
	out := make([]Page, len(pages))
	for i, p := range pages {
		if order, ok := byID[p.ID]; ok {
			p.SortOrder = order
			delete(byID, p.ID)
		}
		out[i] = p
	}
	for id := range byID {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	return Reorder(out, Order(out))
}

// PromoteToFirst moves the page to the front, keeping the relative order of
// the others.
func PromoteToFirst(pages []Page, id uint) ([]Page, error) {
	current := Order(pages)
	ids := make([]uint, 0, len(current))
	found := false
	for _, pid := range current {
		if pid == id {
			found = true
			continue
		}
		ids = append(ids, pid)
	}
	if !found {
		return nil, ErrPageNotFound
	}
	return Reorder(pages, append([]uint{id}, ids...))
}

// Remove deletes the page and returns the page the user should land on: the
// previous page in order, or the next one when the first page was removed.
func Remove(pages []Page, id uint) ([]Page, uint, error) {
	if len(pages) <= 1 {
		if len(pages) == 1 && pages[0].ID == id {
			return nil, 0, ErrLastPageGuard
		}
		return nil, 0, ErrPageNotFound
	}
	sorted := Sort(pages)
	idx := -1
	for i, p := range sorted {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, 0, ErrPageNotFound
	}

	var landing uint
	if idx > 0 {
		landing = sorted[idx-1].ID
	} else {
		landing = sorted[idx+1].ID
	}

	remaining := append(append([]Page(nil), sorted[:idx]...), sorted[idx+1:]...)
	compacted, err := Reorder(remaining, Order(remaining))
	if err != nil {
		return nil, 0, err
	}
	return compacted, landing, nil
}

// Reconcile makes the field list of one page agree with want:
//   - pages without content fields keep no navigation field (orphans are dropped);
//   - want == "" (end pseudo-page) strips every navigation field;
//   - otherwise exactly one navigation field trails the list. A mismatched one is
//     flipped in place (id and style kept), a missing one is appended.
//
// The second result reports whether anything changed.
func Reconcile(list []fields.Field, want fields.Type) ([]fields.Field, bool) {
	content := make([]fields.Field, 0, len(list))
	var nav *fields.Field
	for _, f := range list {
		if f.Type().IsNavigation() {
			current := f
			nav = &current
			continue
		}
		content = append(content, f)
	}

	out := fields.Clone(content)
	if want != "" && len(content) > 0 {
		var button fields.Field
		switch {
		case nav == nil:
			button = fields.MustNew(want).WithPageID(content[0].PageID())
		case nav.Type() != want:
			flipped, err := nav.WithNavigationType(want)
			if err != nil {
				flipped = fields.MustNew(want).WithPageID(content[0].PageID())
			}
			button = flipped
		default:
			button = *nav
		}
		out = append(out, button)
	}

	return out, !sameShape(list, out)
}

func sameShape(a, b []fields.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID() != b[i].ID() || a[i].Type() != b[i].Type() || a[i].Label() != b[i].Label() {
			return false
		}
	}
	return true
}

// TrailingButton returns the navigation field of a reconciled list.
func TrailingButton(list []fields.Field) (fields.Field, bool) {
	if len(list) == 0 {
		return fields.Field{}, false
	}
	last := list[len(list)-1]
	if !last.Type().IsNavigation() {
		return fields.Field{}, false
	}
	return last, true
}
