package attendance_test

import (
	"reflect"
	"testing"
	"time"

	"frontdesk/internal/domain/attendance"
)

// TestAttendanceValidation tests validation of Attendance.
func TestAttendanceValidation(t *testing.T) {
	now := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	valid := attendance.New("a-1", "12345678K", now)
	if valid.ClassDate != "2025-01-15" {
		t.Fatalf("ClassDate = %s", valid.ClassDate)
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid, got %v", err)
	}

	noMember := valid
	noMember.MemberID = ""
	if err := noMember.Validate(); err == nil {
		t.Error("expected error for missing member")
	}

	noTime := valid
	noTime.CheckInTime = time.Time{}
	if err := noTime.Validate(); err == nil {
		t.Error("expected error for missing check-in time")
	}

	badDate := valid
	badDate.ClassDate = "15/01/2025"
	if err := badDate.Validate(); err == nil {
		t.Error("expected error for bad class date")
	}
}

// TestLedger tests the derived ledger view.
func TestLedger(t *testing.T) {
	at := func(day, hour int) time.Time { return time.Date(2025, 1, day, hour, 0, 0, 0, time.UTC) }
	records := []attendance.Attendance{
		attendance.New("1", "M", at(2, 9)),
		attendance.New("2", "M", at(3, 9)),
		attendance.New("3", "M", at(3, 18)),
		attendance.New("4", "M", at(10, 9)),
	}
	renewed := attendance.New("5", "M", at(10, 9))
	renewed.Epoch = 1
	records = append(records, renewed)

	if got := attendance.Ledger(records, 0); !reflect.DeepEqual(got, []string{"2025-01-02", "2025-01-03", "2025-01-10"}) {
		t.Errorf("first epoch ledger = %v", got)
	}
	if got := attendance.Ledger(records, 1); !reflect.DeepEqual(got, []string{"2025-01-10"}) {
		t.Errorf("ledger after reset = %v", got)
	}
	if got := attendance.Ledger(nil, 0); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil ledger, got %#v", got)
	}
}
