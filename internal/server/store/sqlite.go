// Package store persists the notification history of the development server.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

var ErrNotFound = errors.New("store: notification not found")

const maxPageSize = 100

var migrations = []struct {
	version int
	sql     string
}{
	{1, `
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
		CREATE TABLE IF NOT EXISTS notifications (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT    NOT NULL UNIQUE,
			user_id     TEXT    NOT NULL,
			type        TEXT    NOT NULL,
			is_read     INTEGER NOT NULL DEFAULT 0,
			target_kind TEXT    NOT NULL DEFAULT '',
			target_id   TEXT    NOT NULL DEFAULT '',
			message     TEXT    NOT NULL,
			created_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, seq DESC);
		INSERT INTO schema_version (version) VALUES (1);`},
}

// SQLiteStore keeps notifications in a local SQLite database. The row
// sequence is the pagination cursor.
type SQLiteStore struct {
	db *sqlx.DB
}

type row struct {
	Seq        int64  `db:"seq"`
	ID         string `db:"id"`
	UserID     string `db:"user_id"`
	Type       string `db:"type"`
	IsRead     bool   `db:"is_read"`
	TargetKind string `db:"target_kind"`
	TargetID   string `db:"target_id"`
	Message    string `db:"message"`
	CreatedAt  int64  `db:"created_at"`
}

func (r row) toModel() *model.Notification {
	return &model.Notification{
		ID:        model.ID(r.ID),
		Type:      model.NotificationType(r.Type),
		IsRead:    r.IsRead,
		UserID:    r.UserID,
		Target:    model.Target{Kind: model.TargetKind(r.TargetKind), ID: r.TargetID},
		Message:   r.Message,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// Open opens (or creates) the database at path and applies pending
// migrations. ":memory:" is accepted for tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	current := 0

	var tables int
	err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Insert stores n, assigning an id and creation time when missing. It reports
// false when a notification with the same id already exists.
func (s *SQLiteStore) Insert(ctx context.Context, n *model.Notification) (bool, error) {
	if n.UserID == "" {
		return false, errors.New("store: notification without user id")
	}
	if n.ID == "" {
		n.ID = model.ID(uuid.NewString())
	}
	if n.Type == "" {
		n.Type = model.TypeGeneric
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (
			id, user_id, type, is_read, target_kind, target_id, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.UserID, string(n.Type), n.IsRead,
		string(n.Target.Kind), n.Target.ID, n.Message, n.CreatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}
	return affected == 1, nil
}

// List returns one page of userID's notifications, newest first.
func (s *SQLiteStore) List(ctx context.Context, userID, cursor string, limit int) (model.Page, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	query := "SELECT * FROM notifications WHERE user_id = ?"
	args := []any{userID}
	if cursor != "" {
		seq, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return model.Page{}, fmt.Errorf("store: bad cursor %q", cursor)
		}
		query += " AND seq < ?"
		args = append(args, seq)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit+1)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return model.Page{}, fmt.Errorf("listing notifications: %w", err)
	}

	page := model.Page{Items: make([]*model.Notification, 0, min(len(rows), limit))}
	for i, r := range rows {
		if i == limit {
			page.NextCursor = strconv.FormatInt(rows[i-1].Seq, 10)
			break
		}
		page.Items = append(page.Items, r.toModel())
	}
	return page, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string, id model.ID) (*model.Notification, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		"SELECT * FROM notifications WHERE user_id = ? AND id = ?", userID, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return r.toModel(), nil
}

// MarkRead is idempotent; only an unknown id is an error.
func (s *SQLiteStore) MarkRead(ctx context.Context, userID string, id model.ID) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND id = ?", userID, id.String())
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0", userID)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications as read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) DeleteRead(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE user_id = ? AND is_read = 1", userID)
	if err != nil {
		return 0, fmt.Errorf("deleting read notifications: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
