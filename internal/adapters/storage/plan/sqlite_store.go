package plan

import (
	"context"
	"database/sql"
	"errors"

	"frontdesk/internal/adapters/storage"
	domain "frontdesk/internal/domain/plan"
	"frontdesk/internal/domain/quota"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new plan store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByName retrieves a catalog plan.
// PRE: name is non-empty
// POST: Returns the plan or domain.ErrNotFound
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (domain.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name, quota, duration, price, description FROM plan WHERE name = ?", name)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plan{}, domain.ErrNotFound
	}
	return p, err
}

// Upsert inserts or replaces a catalog plan keyed by name.
// PRE: p has been validated
func (s *SQLiteStore) Upsert(ctx context.Context, p domain.Plan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plan (name, quota, duration, price, description) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   quota=excluded.quota, duration=excluded.duration,
		   price=excluded.price, description=excluded.description`,
		p.Name, string(p.Quota), p.Duration, p.Price, p.Description)
	return err
}

// List returns the catalog ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, quota, duration, price, description FROM plan ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := []domain.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func scanPlan(row interface{ Scan(...any) error }) (domain.Plan, error) {
	var p domain.Plan
	var q string
	if err := row.Scan(&p.Name, &q, &p.Duration, &p.Price, &p.Description); err != nil {
		return domain.Plan{}, err
	}
	p.Quota = quota.Quota(q)
	return p, nil
}
