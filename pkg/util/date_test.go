package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseDayCalendarString(t *testing.T) {
	got, ok := ParseDay("2024-01-14")
	if !ok {
		t.Fatalf("expected ok")
	}
	want := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestTruncateDayKeepsLocalDate(t *testing.T) {
	hcm := time.FixedZone("Asia/Ho_Chi_Minh", 7*3600)
	in := time.Date(2024, 3, 1, 2, 30, 0, 0, hcm) // still Feb 29 in UTC
	got := TruncateDay(in)
	if got.Day() != 1 || got.Month() != time.March || got.Location() != time.UTC {
		t.Fatalf("unexpected day %v", got)
	}
}

func TestAddDaysCrossesMonth(t *testing.T) {
	got := AddDays(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 1)
	if got.Month() != time.February || got.Day() != 1 {
		t.Fatalf("unexpected %v", got)
	}
}
