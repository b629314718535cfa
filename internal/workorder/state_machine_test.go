package workorder

import (
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusNotStarted, StatusRejected, true},
		{StatusNotStarted, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},

		// 不允许跳步
		{StatusNotStarted, StatusCompleted, false},
		// rejected 只能从 not_started 进入
		{StatusInProgress, StatusRejected, false},
		// 终态不允许再流转
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusRejected, StatusInProgress, false},
		{StatusCancelled, StatusNotStarted, false},
		// 原地流转也视为非法
		{StatusNotStarted, StatusNotStarted, false},
		{StatusInProgress, StatusInProgress, false},
		// 未知状态
		{Status("bogus"), StatusInProgress, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusNotStarted, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled} {
		if !s.Valid() {
			t.Fatalf("expected %s to be valid", s)
		}
	}
	if Status("serving").Valid() {
		t.Fatalf("expected unknown status to be invalid")
	}
	if StatusNotStarted.Terminal() || StatusInProgress.Terminal() {
		t.Fatalf("expected open statuses to be non-terminal")
	}
	for _, s := range []Status{StatusCompleted, StatusRejected, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
}
