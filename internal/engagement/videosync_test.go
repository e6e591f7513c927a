package engagement

import (
	"testing"

	"github.com/violive/liveshow-go/internal/models"
)

func f64(v float64) *float64 { return &v }

func windowPoll(start, end *float64, active bool) *models.Poll {
	return &models.Poll{ID: "p1", IsActive: active, VideoStartTime: start, VideoEndTime: end}
}

func TestPollWithoutWindowActiveRegardlessOfPosition(t *testing.T) {
	v := NewVideoSync()
	if !v.IsPollActive(windowPoll(nil, nil, true)) {
		t.Fatalf("poll without window should be active when switched on")
	}
}

func TestKillSwitchWinsOverWindow(t *testing.T) {
	v := NewVideoSync()
	v.UpdatePosition(60)
	if v.IsPollActive(windowPoll(f64(30), f64(120), false)) {
		t.Fatalf("inactive poll must stay inactive even inside its window")
	}
}

func TestDeclaredWindowWithUnknownPositionInactive(t *testing.T) {
	v := NewVideoSync()
	if v.IsPollActive(windowPoll(f64(30), f64(120), true)) {
		t.Fatalf("declared window with no known position must be inactive")
	}
}

func TestWindowBoundsInclusive(t *testing.T) {
	v := NewVideoSync()
	p := windowPoll(f64(30), f64(120), true)

	for _, tc := range []struct {
		pos  float64
		want bool
	}{
		{29.9, false},
		{30, true},
		{75, true},
		{120, true},
		{120.1, false},
	} {
		v.UpdatePosition(tc.pos)
		if got := v.IsPollActive(p); got != tc.want {
			t.Fatalf("position %v: active = %v, want %v", tc.pos, got, tc.want)
		}
	}
}

func TestHalfOpenWindows(t *testing.T) {
	v := NewVideoSync()
	v.UpdatePosition(10)

	if v.IsPollActive(windowPoll(f64(30), nil, true)) {
		t.Fatalf("position before open-ended start should be inactive")
	}
	if !v.IsPollActive(windowPoll(nil, f64(30), true)) {
		t.Fatalf("position before an end-only bound should be active")
	}
	v.UpdatePosition(45)
	if !v.IsPollActive(windowPoll(f64(30), nil, true)) {
		t.Fatalf("position past open-ended start should be active")
	}
}

func TestOverrideWinsOverPushedPosition(t *testing.T) {
	v := NewVideoSync()
	v.UpdatePosition(10)
	v.SetOverride(60)

	if pos, ok := v.Position(); !ok || pos != 60 {
		t.Fatalf("position = %v/%v, want override 60", pos, ok)
	}
	if !v.IsPollActive(windowPoll(f64(30), f64(120), true)) {
		t.Fatalf("override inside window should activate the poll")
	}

	v.ClearOverride()
	if pos, ok := v.Position(); !ok || pos != 10 {
		t.Fatalf("position = %v/%v, want pushed 10 after clearing override", pos, ok)
	}
}

func TestContestActivationSameRule(t *testing.T) {
	v := NewVideoSync()
	c := &models.Contest{ID: "c1", IsActive: true, VideoStartTime: f64(30), VideoEndTime: f64(120)}

	if v.IsContestActive(c) {
		t.Fatalf("contest with window and unknown position should be inactive")
	}
	v.UpdatePosition(30)
	if !v.IsContestActive(c) {
		t.Fatalf("contest at window start should be active")
	}
}
