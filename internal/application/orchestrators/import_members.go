package orchestrators

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"frontdesk/internal/application/keylock"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/quota"
)

// ImportMemberStore is the member persistence the roster import needs.
type ImportMemberStore interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
	Save(ctx context.Context, m member.Member) error
}

// ImportMembersInput carries the CSV stream and import options.
// PRE: Reader is a CSV stream with a header row; PerformedBy is non-empty
// POST: Returns aggregate counts and per-row errors; no writes when DryRun
// INVARIANT: Plan terms of existing members change only through renewals
type ImportMembersInput struct {
	Reader      io.Reader
	PerformedBy string
	DryRun      bool
	UpdateMode  bool
}

// ImportMembersResult holds aggregate counts and per-row errors from an import run.
type ImportMembersResult struct {
	Total   int
	Created int
	Updated int
	Skipped int
	Errors  []ImportMembersRowError
	DryRun  bool
	Unknown []string
}

// ImportMembersRowError describes a problem with a single CSV row.
type ImportMembersRowError struct {
	Row     int
	Message string
}

// ImportMembersDeps holds external dependencies for the import orchestrator.
type ImportMembersDeps struct {
	MemberStore ImportMemberStore
	Locks       *keylock.Locker
	Now         func() time.Time
}

// ErrImportFormat is returned when the CSV header is unusable.
var ErrImportFormat = errors.New("invalid member import file")

var importColumns = map[string]bool{
	"ID": true, "NAME": true, "EMAIL": true, "STATUS": true,
	"PLAN": true, "START": true, "END": true, "QUOTA": true, "PRICE": true,
}

// ExecuteImportMembers syncs the roster from a CSV export of the member records.
// New members get their plan terms from the row. Existing members are skipped
// unless UpdateMode is set, and then only name, e-mail and status change.
// PRE: Input.Reader has at least ID and NAME columns; new rows also need START, END and QUOTA
// POST: Members are created/updated/skipped according to DryRun and UpdateMode
// INVARIANT: Renewal state, ledger reset and plan terms of existing members are preserved
func ExecuteImportMembers(ctx context.Context, input ImportMembersInput, deps ImportMembersDeps) (ImportMembersResult, error) {
	cr := csv.NewReader(input.Reader)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return ImportMembersResult{}, fmt.Errorf("%w: read header: %w", ErrImportFormat, err)
	}

	colIdx := make(map[string]int, len(header))
	var unknownCols []string
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(h))
		colIdx[key] = i
		if !importColumns[key] {
			unknownCols = append(unknownCols, h)
		}
	}
	for _, required := range []string{"ID", "NAME"} {
		if _, ok := colIdx[required]; !ok {
			return ImportMembersResult{}, fmt.Errorf("%w: missing column %s", ErrImportFormat, required)
		}
	}

	getCol := func(row []string, col string) string {
		i, ok := colIdx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	result := ImportMembersResult{DryRun: input.DryRun, Unknown: unknownCols}
	rowNum := 1

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			result.Errors = append(result.Errors, ImportMembersRowError{Row: rowNum, Message: err.Error()})
			continue
		}
		result.Total++

		m, err := parseImportRow(getCol, row)
		if err != nil {
			result.Errors = append(result.Errors, ImportMembersRowError{Row: rowNum, Message: err.Error()})
			continue
		}

		created, updated, err := importMember(ctx, m, input, deps)
		switch {
		case err != nil:
			var rowErr *importRowError
			if errors.As(err, &rowErr) {
				result.Errors = append(result.Errors, ImportMembersRowError{Row: rowNum, Message: rowErr.msg})
				continue
			}
			slog.Error("import_event", "event", "member_save_failed", "row", rowNum, "member_id", m.ID, "error", err)
			result.Errors = append(result.Errors, ImportMembersRowError{Row: rowNum, Message: "save failed (see server log)"})
		case created:
			result.Created++
		case updated:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	slog.Info("import_event",
		"event", "members_imported",
		"performed_by", input.PerformedBy,
		"dry_run", input.DryRun,
		"update_mode", input.UpdateMode,
		"total", result.Total,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

type importRowError struct{ msg string }

func (e *importRowError) Error() string { return e.msg }

// parseImportRow reads the row into a member. Plan fields may be blank; they
// are checked only when the member is new.
func parseImportRow(getCol func([]string, string) string, row []string) (member.Member, error) {
	m := member.Member{
		ID:        member.NormalizeID(getCol(row, "ID")),
		Name:      getCol(row, "NAME"),
		PlanName:  getCol(row, "PLAN"),
		PlanStart: getCol(row, "START"),
		PlanEnd:   getCol(row, "END"),
		Status:    strings.ToLower(getCol(row, "STATUS")),
	}
	if m.ID == "" {
		return m, errors.New("id is required")
	}
	if m.Name == "" {
		return m, errors.New("name is required")
	}
	if raw := getCol(row, "EMAIL"); raw != "" {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return m, fmt.Errorf("invalid email: %s", raw)
		}
		m.Email = strings.ToLower(addr.Address)
	}
	if m.Status == "" {
		m.Status = member.StatusActive
	}
	if raw := getCol(row, "QUOTA"); raw != "" {
		q, err := quota.Parse(raw)
		if err != nil {
			return m, err
		}
		m.Quota = q
	}
	if raw := getCol(row, "PRICE"); raw != "" {
		price, err := strconv.Atoi(raw)
		if err != nil || price < 0 {
			return m, fmt.Errorf("invalid price: %s", raw)
		}
		m.Price = price
	}
	return m, nil
}

// importMember writes one row under the member's lock.
func importMember(ctx context.Context, row member.Member, input ImportMembersInput, deps ImportMembersDeps) (created, updated bool, err error) {
	unlock := deps.Locks.Lock(row.ID)
	defer unlock()

	existing, err := deps.MemberStore.GetByID(ctx, row.ID)
	switch {
	case err == nil:
		if !input.UpdateMode {
			return false, false, nil
		}
		existing.Name = row.Name
		existing.Email = row.Email
		existing.Status = row.Status
		if err := existing.Validate(); err != nil {
			return false, false, &importRowError{msg: err.Error()}
		}
		if input.DryRun {
			return false, true, nil
		}
		if err := deps.MemberStore.Save(ctx, existing); err != nil {
			return false, false, storeFailure("save member", err)
		}
		return false, true, nil
	case errors.Is(err, member.ErrNotFound):
		row.CreatedAt = deps.Now()
		if err := row.Validate(); err != nil {
			return false, false, &importRowError{msg: err.Error()}
		}
		if input.DryRun {
			return true, false, nil
		}
		if err := deps.MemberStore.Save(ctx, row); err != nil {
			return false, false, storeFailure("save member", err)
		}
		return true, false, nil
	default:
		return false, false, storeFailure("load member", err)
	}
}
