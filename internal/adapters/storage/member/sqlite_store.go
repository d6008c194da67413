package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"frontdesk/internal/adapters/storage"
	domain "frontdesk/internal/domain/member"
	"frontdesk/internal/domain/quota"
	"frontdesk/internal/domain/renewal"
)

const memberColumns = `id, name, email, plan_name, plan_description, plan_start, plan_end, quota, price,
	status, renewal_state, renewal_requested_at, renewal_reason, ledger_reset_at, created_at, ledger_epoch`

const upsertMember = `INSERT INTO member (` + memberColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	  name=excluded.name, email=excluded.email, plan_name=excluded.plan_name,
	  plan_description=excluded.plan_description, plan_start=excluded.plan_start,
	  plan_end=excluded.plan_end, quota=excluded.quota, price=excluded.price,
	  status=excluded.status, renewal_state=excluded.renewal_state,
	  renewal_requested_at=excluded.renewal_requested_at, renewal_reason=excluded.renewal_reason,
	  ledger_reset_at=excluded.ledger_reset_at, ledger_epoch=excluded.ledger_epoch`

// execer is satisfied by both storage.SQLDB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new member store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Member by its normalized ID.
// PRE: id is non-empty
// POST: Returns the entity or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Member, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM member WHERE id = ?", id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, domain.ErrNotFound
	}
	return m, err
}

// Save inserts or updates a Member. created_at is kept from the first insert.
// PRE: value has been validated
func (s *SQLiteStore) Save(ctx context.Context, value domain.Member) error {
	return saveMember(ctx, s.db, value)
}

// ApplyRenewal writes the renewed member and its history entry in one transaction.
// PRE: value and entry have been validated
// POST: Both rows are committed, or neither is
func (s *SQLiteStore) ApplyRenewal(ctx context.Context, value domain.Member, entry renewal.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin renewal: %w", err)
	}
	defer tx.Rollback()

	if err := saveMember(ctx, tx, value); err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO renewal_history (id, member_id, performed_by, performed_at, previous_state, plan_name, plan_start, plan_end, quota, price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.MemberID, entry.PerformedBy, storage.FormatTime(entry.PerformedAt),
		string(entry.PreviousState), entry.PlanName, entry.PlanStart, entry.PlanEnd,
		string(entry.Quota), entry.Price)
	if err != nil {
		return fmt.Errorf("insert renewal history: %w", err)
	}
	return tx.Commit()
}

// ListActive returns every active member ordered by ID.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]domain.Member, error) {
	return s.List(ctx, ListFilter{Status: domain.StatusActive})
}

// List retrieves members matching the filter, ordered by name.
// POST: Returns a non-nil slice
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Member, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.RenewalState != "" {
		where = append(where, "renewal_state = ?")
		args = append(args, filter.RenewalState)
	}

	query := "SELECT " + memberColumns + " FROM member"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListHistory returns a member's renewals, most recent first.
func (s *SQLiteStore) ListHistory(ctx context.Context, memberID string) ([]renewal.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_id, performed_by, performed_at, previous_state, plan_name, plan_start, plan_end, quota, price
		 FROM renewal_history WHERE member_id = ? ORDER BY performed_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []renewal.HistoryEntry{}
	for rows.Next() {
		var h renewal.HistoryEntry
		var performedAt, previous, q string
		if err := rows.Scan(&h.ID, &h.MemberID, &h.PerformedBy, &performedAt, &previous,
			&h.PlanName, &h.PlanStart, &h.PlanEnd, &q, &h.Price); err != nil {
			return nil, err
		}
		if h.PerformedAt, err = storage.ParseTime(performedAt); err != nil {
			return nil, fmt.Errorf("renewal %s performed_at: %w", h.ID, err)
		}
		h.PreviousState = renewal.State(previous)
		h.Quota = quota.Quota(q)
		result = append(result, h)
	}
	return result, rows.Err()
}

func saveMember(ctx context.Context, db execer, m domain.Member) error {
	_, err := db.ExecContext(ctx, upsertMember,
		m.ID, m.Name, m.Email, m.PlanName, m.PlanDescription, m.PlanStart, m.PlanEnd,
		string(m.Quota), m.Price, m.Status, string(m.RenewalState),
		storage.FormatTime(m.RenewalRequestedAt), m.RenewalReason,
		storage.FormatTime(m.LedgerResetAt), storage.FormatTime(m.CreatedAt), m.LedgerEpoch)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (domain.Member, error) {
	var m domain.Member
	var q, state, requestedAt, resetAt, createdAt string
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PlanName, &m.PlanDescription, &m.PlanStart,
		&m.PlanEnd, &q, &m.Price, &m.Status, &state, &requestedAt, &m.RenewalReason,
		&resetAt, &createdAt, &m.LedgerEpoch)
	if err != nil {
		return domain.Member{}, err
	}
	m.Quota = quota.Quota(q)
	m.RenewalState = renewal.State(state)
	if m.RenewalRequestedAt, err = storage.ParseTime(requestedAt); err != nil {
		return domain.Member{}, fmt.Errorf("member %s renewal_requested_at: %w", m.ID, err)
	}
	if m.LedgerResetAt, err = storage.ParseTime(resetAt); err != nil {
		return domain.Member{}, fmt.Errorf("member %s ledger_reset_at: %w", m.ID, err)
	}
	if m.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return domain.Member{}, fmt.Errorf("member %s created_at: %w", m.ID, err)
	}
	return m, nil
}
