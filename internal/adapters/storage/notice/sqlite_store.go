package notice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"frontdesk/internal/adapters/storage"
	domain "frontdesk/internal/domain/notice"
)

// ErrNotFound is returned by GetByID for unknown notices.
var ErrNotFound = errors.New("notice not found")

const noticeColumns = `n.id, n.title, n.content, n.sender, n.kind, n.reason_code, n.created_at,
	(SELECT group_concat(member_id, ',') FROM notice_recipient WHERE notice_id = n.id)`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts the notice and one row per recipient in a single transaction.
// PRE: n has been validated
// POST: Notice and recipients are persisted together
func (s *SQLiteStore) Save(ctx context.Context, n domain.Notice) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notice: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notice (id, title, content, sender, kind, reason_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, n.Sender, n.Kind, n.ReasonCode, storage.FormatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notice: %w", err)
	}
	for _, r := range n.Recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO notice_recipient (notice_id, member_id) VALUES (?, ?)`, n.ID, r); err != nil {
			return fmt.Errorf("insert notice recipient: %w", err)
		}
	}
	return tx.Commit()
}

// GetByID retrieves a notice with its recipients.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Notice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noticeColumns+` FROM notice n WHERE n.id = ?`, id)
	n, err := scanNotice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notice{}, ErrNotFound
	}
	return n, err
}

// ListAutomaticSince backs the notice deduper's cooldown lookup.
func (s *SQLiteStore) ListAutomaticSince(ctx context.Context, recipient, reason string, since time.Time) ([]domain.Notice, error) {
	return s.query(ctx,
		`SELECT `+noticeColumns+` FROM notice n
		 JOIN notice_recipient r ON r.notice_id = n.id
		 WHERE r.member_id = ? AND n.kind = ? AND n.reason_code = ? AND n.created_at >= ?
		 ORDER BY n.created_at DESC`,
		recipient, domain.KindAutomatic, reason, storage.FormatTime(since))
}

// ListForRecipient returns up to limit notices addressed to recipient.
// PRE: limit > 0
func (s *SQLiteStore) ListForRecipient(ctx context.Context, recipient string, limit int) ([]domain.Notice, error) {
	return s.query(ctx,
		`SELECT `+noticeColumns+` FROM notice n
		 JOIN notice_recipient r ON r.notice_id = n.id
		 WHERE r.member_id = ?
		 ORDER BY n.created_at DESC LIMIT ?`,
		recipient, limit)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.Notice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Notice{}
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func scanNotice(row interface{ Scan(...any) error }) (domain.Notice, error) {
	var n domain.Notice
	var createdAt string
	var recipients sql.NullString
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Sender, &n.Kind, &n.ReasonCode,
		&createdAt, &recipients); err != nil {
		return domain.Notice{}, err
	}
	var err error
	if n.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return domain.Notice{}, fmt.Errorf("notice %s created_at: %w", n.ID, err)
	}
	n.Recipients = []string{}
	if recipients.Valid && recipients.String != "" {
		n.Recipients = strings.Split(recipients.String, ",")
		sort.Strings(n.Recipients)
	}
	return n, nil
}
