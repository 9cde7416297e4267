package console

import (
	"strings"

	"github.com/nimasrn/intake-gateway/internal/model"
)

// Rows returns the loaded page. The rows are snapshots and must be treated
// as read-only.
func (c *Console) Rows() []*model.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.Submission(nil), c.rows...)
}

func (c *Console) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Console) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Console) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageCountLocked()
}

func (c *Console) pageCountLocked() int {
	n := int((c.total + PageSize - 1) / PageSize)
	return max(1, n)
}

func (c *Console) CanPrev() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page > 1
}

func (c *Console) CanNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page < c.pageCountLocked()
}

// UnreadCount counts unread rows on the loaded page.
func (c *Console) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.rows {
		if !r.IsRead() {
			n++
		}
	}
	return n
}

func (c *Console) SetQuery(q string) {
	c.mu.Lock()
	c.query = q
	c.mu.Unlock()
}

// Visible narrows the loaded page by the free-text query. It never goes
// back to the server.
func (c *Console) Visible() []*model.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(c.query))
	if q == "" {
		return append([]*model.Submission(nil), c.rows...)
	}
	out := make([]*model.Submission, 0, len(c.rows))
	for _, r := range c.rows {
		if strings.Contains(strings.ToLower(haystack(r)), q) {
			out = append(out, r)
		}
	}
	return out
}

func haystack(r *model.Submission) string {
	return strings.Join([]string{
		r.Email,
		deref(r.Name),
		deref(r.Subject),
		deref(r.Message),
		deref(r.Location),
		deref(r.Timeline),
	}, "\n")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Toggle flips the selection of id. Ids not on the loaded page are ignored.
func (c *Console) Toggle(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selected[id]; ok {
		delete(c.selected, id)
		return
	}
	for _, r := range c.rows {
		if r.ID == id {
			c.selected[id] = struct{}{}
			return
		}
	}
}

// Select adds ids to the selection without ever deselecting, so repeats
// are harmless. Ids not on the loaded page are ignored. It returns how
// many ids are selected afterwards.
func (c *Console) Select(ids ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	onPage := make(map[string]struct{}, len(c.rows))
	for _, r := range c.rows {
		onPage[r.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := onPage[id]; ok {
			c.selected[id] = struct{}{}
		}
	}
	return len(c.selected)
}

func (c *Console) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rows {
		c.selected[r.ID] = struct{}{}
	}
}

func (c *Console) ClearSelection() {
	c.mu.Lock()
	c.selected = make(map[string]struct{})
	c.mu.Unlock()
}

// Selected returns the selected ids in page order.
func (c *Console) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.selected))
	for _, r := range c.rows {
		if _, ok := c.selected[r.ID]; ok {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// ExportableRows are the selected rows that have already been read.
func (c *Console) ExportableRows() []*model.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exportableLocked()
}

func (c *Console) exportableLocked() []*model.Submission {
	out := make([]*model.Submission, 0, len(c.selected))
	for _, r := range c.rows {
		if _, ok := c.selected[r.ID]; ok && r.IsRead() {
			out = append(out, r)
		}
	}
	return out
}
