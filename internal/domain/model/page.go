package model

// Page is one slice of the paginated history store, newest first.
type Page struct {
	Items      []*Notification `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"` // empty on the last page
}

func (p Page) HasMore() bool { return p.NextCursor != "" }
