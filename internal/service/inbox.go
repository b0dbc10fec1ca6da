package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

// HistoryStore is the paginated REST side of the notification feed.
type HistoryStore interface {
	List(ctx context.Context, cursor string, limit int) (model.Page, error)
	MarkRead(ctx context.Context, id model.ID) error
	MarkAllRead(ctx context.Context) error
	DeleteRead(ctx context.Context) (int, error)
}

// Inbox is the command path: every action goes to the history store first and
// reaches the local cache only once the store has accepted it.
type Inbox struct {
	store    HistoryStore
	coord    *Coordinator
	pageSize int
	logger   *slog.Logger
}

func NewInbox(store HistoryStore, coord *Coordinator, pageSize int, logger *slog.Logger) *Inbox {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Inbox{
		store:    store,
		coord:    coord,
		pageSize: pageSize,
		logger:   logger,
	}
}

// LoadPage fetches one history page and merges it into the cache. added counts
// only ids the cache did not know yet.
func (i *Inbox) LoadPage(ctx context.Context, cursor string) (page model.Page, added int, err error) {
	page, err = i.store.List(ctx, cursor, i.pageSize)
	if err != nil {
		return model.Page{}, 0, fmt.Errorf("load history page: %w", err)
	}

	added = i.coord.MergeHistory(page.Items)
	i.logger.Debug("[INBOX] history page merged",
		slog.Int("items", len(page.Items)),
		slog.Int("added", added),
		slog.Bool("has_more", page.HasMore()),
	)
	return page, added, nil
}

// LoadAll walks the history until the last page or maxPages, whichever comes first.
func (i *Inbox) LoadAll(ctx context.Context, maxPages int) (int, error) {
	var (
		cursor string
		total  int
	)
	for n := 0; maxPages <= 0 || n < maxPages; n++ {
		page, added, err := i.LoadPage(ctx, cursor)
		if err != nil {
			return total, err
		}
		total += added
		if !page.HasMore() {
			break
		}
		cursor = page.NextCursor
	}
	return total, nil
}

func (i *Inbox) MarkRead(ctx context.Context, id model.ID) error {
	if err := i.store.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("mark %s read: %w", id, err)
	}
	i.coord.MarkRead(id)
	return nil
}

func (i *Inbox) MarkAllRead(ctx context.Context) error {
	if err := i.store.MarkAllRead(ctx); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	changed := i.coord.MarkAllRead()
	i.logger.Debug("[INBOX] all marked read", slog.Int("changed", changed))
	return nil
}

// DeleteRead purges read notifications on the server, then locally.
func (i *Inbox) DeleteRead(ctx context.Context) (int, error) {
	removed, err := i.store.DeleteRead(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete read: %w", err)
	}
	local := i.coord.DeleteRead()
	i.logger.Debug("[INBOX] read notifications deleted",
		slog.Int("server", removed),
		slog.Int("local", local),
	)
	return removed, nil
}
