package attendance

import (
	"context"
	"fmt"

	"frontdesk/internal/adapters/storage"
	domain "frontdesk/internal/domain/attendance"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new attendance store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append records a check-in with a single conditional insert, so two
// processes racing on the same member and day cannot both succeed.
// PRE: a has been validated
// POST: Exactly one record exists for (member, class date, epoch)
func (s *SQLiteStore) Append(ctx context.Context, a domain.Attendance) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance (id, member_id, check_in_time, class_date, ledger_epoch)
		 SELECT ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM attendance
		   WHERE member_id = ? AND class_date = ? AND ledger_epoch = ?
		 )`,
		a.ID, a.MemberID, storage.FormatTime(a.CheckInTime), a.ClassDate, a.Epoch,
		a.MemberID, a.ClassDate, a.Epoch)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyRecorded
	}
	return nil
}

// ListLedger returns the member's distinct class dates in one ledger epoch.
// POST: Returns a non-nil slice
func (s *SQLiteStore) ListLedger(ctx context.Context, memberID string, epoch int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT class_date FROM attendance
		 WHERE member_id = ? AND ledger_epoch = ?
		 GROUP BY class_date
		 ORDER BY MIN(check_in_time)`,
		memberID, epoch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// ListByDateRange returns records whose class date falls in [from, to].
// PRE: from and to are YYYY-MM-DD
func (s *SQLiteStore) ListByDateRange(ctx context.Context, from, to string) ([]domain.Attendance, error) {
	return s.query(ctx,
		`SELECT id, member_id, check_in_time, class_date, ledger_epoch FROM attendance
		 WHERE class_date BETWEEN ? AND ? ORDER BY check_in_time`, from, to)
}

// ListByMember returns the member's most recent records.
// PRE: limit > 0
func (s *SQLiteStore) ListByMember(ctx context.Context, memberID string, limit int) ([]domain.Attendance, error) {
	return s.query(ctx,
		`SELECT id, member_id, check_in_time, class_date, ledger_epoch FROM attendance
		 WHERE member_id = ? ORDER BY check_in_time DESC LIMIT ?`, memberID, limit)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Attendance{}
	for rows.Next() {
		var a domain.Attendance
		var checkIn string
		if err := rows.Scan(&a.ID, &a.MemberID, &checkIn, &a.ClassDate, &a.Epoch); err != nil {
			return nil, err
		}
		if a.CheckInTime, err = storage.ParseTime(checkIn); err != nil {
			return nil, fmt.Errorf("attendance %s check_in_time: %w", a.ID, err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
