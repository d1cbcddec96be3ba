package domain

import (
	"testing"
	"time"
)

func TestRoleDerivation(t *testing.T) {
	r := NewRole("TEACHER_ROLE")
	if r.Label() != "TEACHER_ROLE" {
		t.Fatalf("label round trip failed: %q", r.Label())
	}
	want := "0x544541434845525f524f4c450000000000000000000000000000000000000000"
	if r.String() != want {
		t.Fatalf("unexpected id %s", r.String())
	}
	if RoleTeacher == RoleStudent {
		t.Fatalf("distinct labels must derive distinct ids")
	}
}

func TestParseRole(t *testing.T) {
	fromHex, err := ParseRole(RoleTeacher.String())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != RoleTeacher {
		t.Fatalf("hex parse does not round trip")
	}

	fromLabel, err := ParseRole("TEACHER_ROLE")
	if err != nil {
		t.Fatalf("parse label: %v", err)
	}
	if fromLabel != RoleTeacher {
		t.Fatalf("label parse does not match derivation")
	}

	for _, bad := range []string{"", "0x1234", "0xzz"} {
		if _, err := ParseRole(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestQuizOpenForJoining(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	q := Quiz{
		Active:    true,
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(3 * time.Hour),
	}

	// Before the start time is fine; only the end time closes the window.
	if !q.OpenForJoining(now) {
		t.Fatalf("expected open before start time")
	}
	if !q.OpenForJoining(now.Add(2 * time.Hour)) {
		t.Fatalf("expected open inside the window")
	}
	if q.OpenForJoining(now.Add(3 * time.Hour)) {
		t.Fatalf("expected closed at end time")
	}

	q.Active = false
	if q.OpenForJoining(now) {
		t.Fatalf("expected closed once resolved")
	}
}
