package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"frontdesk/internal/domain/attendance"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/notice"
	"frontdesk/internal/domain/outbox"
	"frontdesk/internal/domain/plan"
	"frontdesk/internal/domain/quota"
	"frontdesk/internal/domain/renewal"
)

var fixedTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

func fixedID() string { return "test-id-001" }

// sequentialIDs returns a generator yielding id-1, id-2, ...
func sequentialIDs() func() string {
	var n int64
	return func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&n, 1)) }
}

var errStoreDown = errors.New("database is locked")

func testMember() member.Member {
	return member.Member{
		ID:        "12345678K",
		Name:      "Ana Rojas",
		Email:     "ana@example.com",
		PlanName:  "Monthly 12",
		PlanStart: "2025-01-01",
		PlanEnd:   "2025-02-28",
		Quota:     quota.Twelve,
		Price:     35000,
		Status:    member.StatusActive,
	}
}

// --- members ---

type mockMemberStore struct {
	mu       sync.Mutex
	members  map[string]member.Member
	history  []renewal.HistoryEntry
	getErr   error
	applyErr error
}

func newMockMemberStore(ms ...member.Member) *mockMemberStore {
	s := &mockMemberStore{members: make(map[string]member.Member)}
	for _, m := range ms {
		s.members[m.ID] = m
	}
	return s
}

func (s *mockMemberStore) GetByID(_ context.Context, id string) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return member.Member{}, s.getErr
	}
	m, ok := s.members[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (s *mockMemberStore) Save(_ context.Context, m member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
	return nil
}

func (s *mockMemberStore) ApplyRenewal(_ context.Context, m member.Member, h renewal.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.members[m.ID] = m
	s.history = append(s.history, h)
	return nil
}

func (s *mockMemberStore) ListActive(_ context.Context) ([]member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	var out []member.Member
	for _, m := range s.members {
		if m.IsActive() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- attendance ---

type mockAttendanceStore struct {
	mu        sync.Mutex
	records   []attendance.Attendance
	listErr   error
	appendErr error
}

func (s *mockAttendanceStore) ListLedger(_ context.Context, memberID string, epoch int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var mine []attendance.Attendance
	for _, r := range s.records {
		if r.MemberID == memberID {
			mine = append(mine, r)
		}
	}
	return attendance.Ledger(mine, epoch), nil
}

func (s *mockAttendanceStore) Append(_ context.Context, a attendance.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	for _, r := range s.records {
		if r.MemberID == a.MemberID && r.ClassDate == a.ClassDate && r.Epoch == a.Epoch {
			return attendance.ErrAlreadyRecorded
		}
	}
	s.records = append(s.records, a)
	return nil
}

// --- plans ---

type mockPlanStore struct {
	plans map[string]plan.Plan
}

func (s *mockPlanStore) GetByName(_ context.Context, name string) (plan.Plan, error) {
	p, ok := s.plans[name]
	if !ok {
		return plan.Plan{}, plan.ErrNotFound
	}
	return p, nil
}

// --- notices ---

type mockNoticeStore struct {
	mu      sync.Mutex
	notices []notice.Notice
	saveErr error
}

func (s *mockNoticeStore) Save(_ context.Context, n notice.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.notices = append(s.notices, n)
	return nil
}

func (s *mockNoticeStore) ListAutomaticSince(_ context.Context, recipient, reason string, since time.Time) ([]notice.Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notice.Notice
	for _, n := range s.notices {
		if n.IsAutomatic() && n.ReasonCode == reason && n.HasRecipient(recipient) && !n.CreatedAt.Before(since) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *mockNoticeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notices)
}

// --- outbox ---

type mockOutboxStore struct {
	mu      sync.Mutex
	entries map[string]outbox.Entry
	order   []string
}

func newMockOutboxStore() *mockOutboxStore {
	return &mockOutboxStore{entries: make(map[string]outbox.Entry)}
}

func (s *mockOutboxStore) GetByID(_ context.Context, id string) (outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return outbox.Entry{}, outbox.ErrNotFound
	}
	return e, nil
}

func (s *mockOutboxStore) Save(_ context.Context, e outbox.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.entries[e.ID] = e
	return nil
}

func (s *mockOutboxStore) ListPending(_ context.Context, limit int) ([]outbox.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Entry
	for _, id := range s.order {
		e := s.entries[id]
		if (e.Status == outbox.StatusPending || e.Status == outbox.StatusRetrying) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *mockOutboxStore) all() []outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}
