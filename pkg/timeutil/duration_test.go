package timeutil

import (
	"testing"
	"time"
)

func TestParseDurationComposite(t *testing.T) {
	dur, err := ParseDuration("1h30m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 90 * time.Minute; dur != want {
		t.Fatalf("expected %v, got %v", want, dur)
	}
	if label := FormatCompact(dur); label != "1h30m" {
		t.Fatalf("unexpected label: %s", label)
	}
}

func TestParseDurationBareSecondsAndEmpty(t *testing.T) {
	dur, err := ParseDuration("90")
	if err != nil || dur != 90*time.Second {
		t.Fatalf("got %v, %v", dur, err)
	}
	dur, err = ParseDuration(" ")
	if err != nil || dur != 0 {
		t.Fatalf("got %v, %v", dur, err)
	}
}

func TestParseDurationInvalid(t *testing.T) {
	if _, err := ParseDuration("noop"); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
	if _, err := ParseDuration("3 fortnights"); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[int64]string{0: "00:00", 65: "01:05", 3725: "1:02:05", -4: "00:00"}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	for in, want := range map[string]string{"": "2024-03-01", "yesterday": "2024-02-29", "2024-01-05": "2024-01-05"} {
		got, err := ParseDate(in, now)
		if err != nil || got != want {
			t.Fatalf("ParseDate(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDate("01/05/2024", now); err == nil {
		t.Fatalf("expected error for bad layout")
	}
}
