package options

import (
	"testing"
	"time"
)

func TestTaskOptionsRequest(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	o := &TaskOptions{
		Category: "Work/Deep",
		Tags:     "focus, writing,",
		Date:     "yesterday",
		Initial:  "25m",
	}
	req, err := o.Request("write report", now)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if req.Date != "2024-03-08" {
		t.Fatalf("date = %q", req.Date)
	}
	if req.InitialTime != 1500 {
		t.Fatalf("initial = %d", req.InitialTime)
	}
	if len(req.InstanceTagNames) != 2 || req.InstanceTagNames[1] != "writing" {
		t.Fatalf("tags = %v", req.InstanceTagNames)
	}
}

func TestTaskOptionsRejectsBadInput(t *testing.T) {
	now := time.Now()
	if _, err := (&TaskOptions{Date: "today"}).Request("  ", now); err == nil {
		t.Fatalf("expected empty name to fail")
	}
	if _, err := (&TaskOptions{Date: "today", Initial: "soon"}).Request("x", now); err == nil {
		t.Fatalf("expected bad duration to fail")
	}
}
