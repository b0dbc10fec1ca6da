package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

func note(id string, read bool, at time.Time) *model.Notification {
	return &model.Notification{ID: model.ID(id), Type: model.TypeGeneric, IsRead: read, CreatedAt: at}
}

func TestCache_InsertDedup(t *testing.T) {
	c := NewCache()
	t0 := time.Unix(100, 0)

	assert.True(t, c.Insert(note("1", false, t0)))
	assert.False(t, c.Insert(note("1", false, t0)))
	assert.False(t, c.Insert(note("1", true, t0)))
	assert.True(t, c.Insert(note("2", true, t0)))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 1, c.Unread())
}

func TestCache_InsertCopies(t *testing.T) {
	c := NewCache()
	n := note("1", false, time.Unix(100, 0))
	c.Insert(n)

	n.IsRead = true
	got, ok := c.Get("1")
	assert.True(t, ok)
	assert.False(t, got.IsRead)
}

func TestCache_Merge(t *testing.T) {
	c := NewCache()
	t0 := time.Unix(100, 0)
	c.Insert(note("1", false, t0))
	c.Insert(note("2", false, t0))

	added := c.Merge([]*model.Notification{
		note("1", false, t0),
		note("2", true, t0), // read on the server meanwhile
		note("3", false, t0),
		note("3", false, t0),
		nil,
		{Message: "no id"},
	})

	assert.Equal(t, 1, added)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 2, c.Unread())

	got, _ := c.Get("2")
	assert.True(t, got.IsRead)

	// read state is never downgraded
	c.Merge([]*model.Notification{note("2", false, t0)})
	got, _ = c.Get("2")
	assert.True(t, got.IsRead)
	assert.Equal(t, 2, c.Unread())
}

func TestCache_ReadTransitions(t *testing.T) {
	c := NewCache()
	t0 := time.Unix(100, 0)
	c.Insert(note("1", false, t0))
	c.Insert(note("2", false, t0))
	c.Insert(note("3", true, t0))

	assert.True(t, c.MarkRead("1"))
	assert.False(t, c.MarkRead("1"))
	assert.False(t, c.MarkRead("404"))
	assert.Equal(t, 1, c.Unread())

	other, _ := c.Get("2")
	assert.False(t, other.IsRead)

	assert.Equal(t, 1, c.MarkAllRead())
	assert.Equal(t, 0, c.Unread())

	assert.Equal(t, 3, c.DeleteRead())
	assert.Zero(t, c.Len())
	assert.False(t, c.Has("1"))
}

func TestCache_DeleteReadKeepsUnread(t *testing.T) {
	c := NewCache()
	t0 := time.Unix(100, 0)
	c.Insert(note("1", true, t0))
	c.Insert(note("2", false, t0))

	assert.Equal(t, 1, c.DeleteRead())
	assert.True(t, c.Has("2"))
	assert.Equal(t, 1, c.Unread())

	// a deleted id may arrive again through history
	assert.Equal(t, 1, c.Merge([]*model.Notification{note("1", true, t0)}))
}

func TestCache_ListNewestFirst(t *testing.T) {
	c := NewCache()
	c.Insert(note("old", false, time.Unix(100, 0)))
	c.Insert(note("new", false, time.Unix(300, 0)))
	c.Insert(note("mid-a", false, time.Unix(200, 0)))
	c.Insert(note("mid-b", false, time.Unix(200, 0)))

	var ids []model.ID
	for _, n := range c.List() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []model.ID{"new", "mid-b", "mid-a", "old"}, ids)
}

func TestCache_Clear(t *testing.T) {
	c := NewCache()
	c.Insert(note("1", false, time.Unix(100, 0)))
	c.Clear()

	assert.Zero(t, c.Len())
	assert.Zero(t, c.Unread())
	assert.Empty(t, c.List())
	assert.True(t, c.Insert(note("1", false, time.Unix(100, 0))))
}
