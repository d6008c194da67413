package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"frontdesk/internal/adapters/export"
	"frontdesk/internal/adapters/http/middleware"
	"frontdesk/internal/adapters/http/perf"
	"frontdesk/internal/adapters/storage"
	attendanceStore "frontdesk/internal/adapters/storage/attendance"
	memberStore "frontdesk/internal/adapters/storage/member"
	noticeStore "frontdesk/internal/adapters/storage/notice"
	outboxStore "frontdesk/internal/adapters/storage/outbox"
	planStore "frontdesk/internal/adapters/storage/plan"
	"frontdesk/internal/application/keylock"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/outbox"
	"frontdesk/internal/domain/plan"
	"frontdesk/internal/domain/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Wednesday, mid-cycle of the sample plan.
var testNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	handler   http.Handler
	stores    *Stores
	collector *perf.Collector
	db        *sql.DB
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("disk I/O error") }

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	db, err := storage.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.MigrateDB(context.Background(), db))

	stores := &Stores{
		MemberStore:     memberStore.NewSQLiteStore(db),
		PlanStore:       planStore.NewSQLiteStore(db),
		AttendanceStore: attendanceStore.NewSQLiteStore(db),
		NoticeStore:     noticeStore.NewSQLiteStore(db),
		OutboxStore:     outboxStore.NewSQLiteStore(db),
	}

	var n int64
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	if opts.GenerateID == nil {
		opts.GenerateID = func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&n, 1)) }
	}
	if opts.DB == nil {
		opts.DB = db
	}
	opts.RateLimitPerSecond = 1000

	collector := perf.NewCollector()
	srv := NewServer(stores, collector, keylock.New(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testEnv{handler: NewMux(ctx, srv), stores: stores, collector: collector, db: db}
}

func (e *testEnv) seedMember(t *testing.T, m member.Member) {
	t.Helper()
	require.NoError(t, e.stores.MemberStore.Save(context.Background(), m))
}

func sampleMember() member.Member {
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

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) admin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, middleware.ActorHeader, "desk@gym")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- check-in ---

func TestCheckIn_AdmittedThenAlreadyCheckedIn(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())

	rec := env.do(t, http.MethodPost, "/checkin", `{"memberId":"12.345.678-k"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	admitted := decode[map[string]any](t, rec)
	assert.Equal(t, "admitted", admitted["status"])
	assert.Equal(t, "2025-01-15", admitted["date"])
	assert.EqualValues(t, 12, admitted["effectiveQuota"]) // 13 business days left after Jan 15, so the nominal 12 applies

	rec = env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[rejectedResponse](t, rec)
	assert.Equal(t, "ALREADY_CHECKED_IN_TODAY", string(rejected.Code))
}

func TestCheckIn_UnknownMemberIsRejectedNotError(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodPost, "/checkin", `{"memberId":"999"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MEMBER_NOT_FOUND", string(decode[rejectedResponse](t, rec).Code))
}

func TestCheckIn_MalformedTokenIs400(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())

	rec := env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K","token":"not-a-token"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "TOKEN_MALFORMED", string(decode[rejectedResponse](t, rec).Code))
}

func TestCheckIn_RequestValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"missing member", `{}`},
		{"unknown field", `{"memberId":"1","extra":true}`},
		{"not json", `memberId=1`},
		{"id too long", `{"memberId":"` + strings.Repeat("1", 40) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/checkin", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCheckIn_RecordsDecisionMetric(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())
	env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K"}`)
	env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K"}`)

	families, err := env.collector.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != "frontdesk_checkin_decisions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, total)
}

// --- members ---

func TestCycleStatus(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())
	env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K"}`)

	rec := env.do(t, http.MethodGet, "/members/12345678K/cycle", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[cycleStatusResponse](t, rec)
	assert.Equal(t, "2025-01-01", res.Cycle.Start)
	assert.Equal(t, []string{"2025-01-15"}, res.AttendedDates)
	assert.Equal(t, 11, res.RemainingClasses)

	rec = env.do(t, http.MethodGet, "/members/404/cycle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenewalFlow(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())
	require.NoError(t, env.stores.PlanStore.Upsert(context.Background(), plan.Plan{
		Name: "Monthly 8", Quota: quota.Eight, Duration: "monthly", Price: 28000,
	}))

	rec := env.do(t, http.MethodPost, "/members/12345678K/renewal-request", `{"reason":"moving to 8"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "requested", decode[renewalView](t, rec).RenewalState)

	rec = env.admin(t, http.MethodPost, "/admin/renewals/12345678K/processing", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "processing", decode[renewalView](t, rec).RenewalState)

	// processing cannot begin twice
	rec = env.admin(t, http.MethodPost, "/admin/renewals/12345678K/processing", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.admin(t, http.MethodPost, "/admin/renewals",
		`{"memberId":"12345678K","planName":"Monthly 8","planStart":"2025-02-01","discount":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[renewResponse](t, rec)
	assert.Equal(t, "completed", res.Member.RenewalState)
	assert.Equal(t, "Monthly 8", res.Member.PlanName)
	assert.Equal(t, "8", res.Member.NominalQuota)
	assert.Equal(t, 25200, res.Member.Price)
	assert.Equal(t, "desk@gym", res.History.PerformedBy)
	assert.Equal(t, "processing", res.History.PreviousState)

	rec = env.do(t, http.MethodGet, "/members/12345678K/renewals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]historyView](t, rec), 1)
}

func TestRenewal_ResetsLedgerAtSameInstant(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())

	rec := env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K"}`)
	require.Equal(t, "admitted", decode[map[string]any](t, rec)["status"])

	// The clock is frozen, so the renewal shares the check-in's timestamp.
	rec = env.admin(t, http.MethodPost, "/admin/renewals",
		`{"memberId":"12345678K","nominalQuota":"8","planEnd":"2025-02-28"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/members/12345678K/cycle", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[cycleStatusResponse](t, rec)
	assert.Equal(t, "2025-01-15", res.Cycle.Start)
	assert.Empty(t, res.AttendedDates)

	rec = env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K"}`)
	assert.Equal(t, "admitted", decode[map[string]any](t, rec)["status"])
}

func TestRenewalRequest_EmptyBodyAllowed(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())

	rec := env.do(t, http.MethodPost, "/members/12345678K/renewal-request", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "requested", decode[renewalView](t, rec).RenewalState)
}

func TestAdminRenew_Errors(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown plan", `{"memberId":"12345678K","planName":"Gold"}`, http.StatusBadRequest},
		{"bad quota", `{"memberId":"12345678K","nominalQuota":"7"}`, http.StatusBadRequest},
		{"bad date", `{"memberId":"12345678K","nominalQuota":"8","planStart":"15/01/2025"}`, http.StatusBadRequest},
		{"unknown member", `{"memberId":"1","nominalQuota":"8"}`, http.StatusNotFound},
		{"end before start", `{"memberId":"12345678K","nominalQuota":"8","planStart":"2025-02-01","planEnd":"2025-01-01"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.admin(t, http.MethodPost, "/admin/renewals", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestStoreFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())
	require.NoError(t, env.db.Close())

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"renewal request", http.MethodPost, "/members/12345678K/renewal-request", `{"reason":"moving"}`},
		{"admin renew", http.MethodPost, "/admin/renewals", `{"memberId":"12345678K","nominalQuota":"8","planEnd":"2025-03-31"}`},
		{"cycle status", http.MethodGet, "/members/12345678K/cycle", ""},
		{"notice list", http.MethodGet, "/notices?memberId=12345678K", ""},
		{"manual notice", http.MethodPost, "/admin/notices", `{"recipients":["12345678K"],"title":"t","body":"b"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.admin(t, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		})
	}
}

func TestAdminRoutesRequireActor(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/admin/plans", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.admin(t, http.MethodGet, "/admin/plans", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// --- notices ---

func TestNotices_ManualCreateAndList(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())

	rec := env.admin(t, http.MethodPost, "/admin/notices",
		`{"recipients":["12.345.678-K","12345678K"],"title":"Closed Friday","body":"The gym is **closed**."}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[noticeView](t, rec)
	assert.Equal(t, []string{"12345678K"}, created.Recipients)
	assert.Equal(t, "desk@gym", created.Sender)
	assert.Equal(t, "manual", created.Kind)

	rec = env.do(t, http.MethodGet, "/notices?memberId=12345678K", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]noticeView](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Closed Friday", list[0].Title)

	pending, err := env.stores.OutboxStore.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, outbox.ActionTypeNoticeEmail, pending[0].ActionType)
}

func TestNotices_ListValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/notices", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/notices?memberId=1", "").Code)
}

func TestNotices_AutomaticIsDeduplicated(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())
	body := `{"recipients":["12345678K","555"],"title":"Plan ending","body":"Renew soon","kind":"automatic","reasonCode":"expiry_in_3_days"}`

	rec := env.admin(t, http.MethodPost, "/admin/notices", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[[]automaticOutcome](t, rec)
	require.Len(t, first, 2)
	assert.True(t, first[0].Created)
	assert.Equal(t, "555", first[1].MemberID)
	assert.NotEmpty(t, first[1].Error)

	rec = env.admin(t, http.MethodPost, "/admin/notices", body)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[[]automaticOutcome](t, rec)
	assert.False(t, second[0].Created)
}

func TestNotices_AutomaticRequiresReason(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.admin(t, http.MethodPost, "/admin/notices",
		`{"recipients":["1"],"title":"t","body":"b","kind":"automatic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpiryScan(t *testing.T) {
	env := newTestEnv(t, Options{})
	m := sampleMember()
	m.PlanEnd = "2025-01-18" // three days after testNow
	env.seedMember(t, m)

	rec := env.admin(t, http.MethodPost, "/admin/scan/expiry", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[expiryScanResponse](t, rec)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Sent)

	rec = env.admin(t, http.MethodPost, "/admin/scan/expiry", "")
	res = decode[expiryScanResponse](t, rec)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, 1, res.Suppressed)
}

// --- export ---

func TestAttendanceExport(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seedMember(t, sampleMember())
	env.do(t, http.MethodPost, "/checkin", `{"memberId":"12345678K"}`)

	rec := env.admin(t, http.MethodGet, "/admin/attendance/export?from=2025-01-01&to=2025-01-31&format=json", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := decode[[]reportRowView](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana Rojas", rows[0].MemberName)

	rec = env.admin(t, http.MethodGet, "/admin/attendance/export?from=2025-01-01&to=2025-01-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	name, err := f.GetCellValue("Attendance", "D2")
	require.NoError(t, err)
	assert.Equal(t, "Ana Rojas", name)

	rec = env.admin(t, http.MethodGet, "/admin/attendance/export?from=2025-02-01&to=2025-01-01&format=json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.admin(t, http.MethodGet, "/admin/attendance/export?from=2025-01-01&to=2025-01-31&format=csv", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- outbox ---

func TestOutboxAdmin(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	e := outbox.NewEntry("ob-1", outbox.ActionTypeNoticeEmail, `{}`, testNow)
	e.Status = outbox.StatusFailed
	e.Attempts = e.MaxAttempts
	require.NoError(t, env.stores.OutboxStore.Save(ctx, e))

	rec := env.admin(t, http.MethodGet, "/admin/outbox", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]outboxEntryView](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "ob-1", list[0].ID)

	assert.Equal(t, http.StatusBadRequest, env.admin(t, http.MethodGet, "/admin/outbox?status=done", "").Code)

	rec = env.admin(t, http.MethodPost, "/admin/outbox/ob-1/abandon", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.admin(t, http.MethodPost, "/admin/outbox/ob-1/retry", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.admin(t, http.MethodPost, "/admin/outbox/missing/retry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- health and metrics ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	down := newTestEnv(t, Options{DB: failingPinger{}})
	rec = down.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodGet, "/health", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `frontdesk_http_request_duration_seconds_count{route="GET /health",status="200"} 1`)
}

// --- roster ---

func TestRosterImportAndList(t *testing.T) {
	env := newTestEnv(t, Options{})
	csv := "id,name,email,plan,start,end,quota,price\n" +
		"12345678K,Ana Rojas,ana@example.com,Monthly 12,2025-01-01,2025-01-18,12,35000\n" +
		"98765432,Bruno Diaz,,Monthly 8,2025-01-10,2025-02-09,9,28000\n"

	req := httptest.NewRequest(http.MethodPost, "/admin/members/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set(middleware.ActorHeader, "desk@gym")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[importResponse](t, rec)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)

	rec = env.admin(t, http.MethodGet, "/admin/members?status=active", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[memberListResponse](t, rec)
	require.Len(t, list.Members, 1)
	require.NotNil(t, list.Members[0].DaysUntilExpiry)
	assert.Equal(t, 3, *list.Members[0].DaysUntilExpiry)
	assert.False(t, list.Page.HasMore)

	assert.Equal(t, http.StatusBadRequest, env.admin(t, http.MethodGet, "/admin/members?renewalState=lost", "").Code)
}
