package scheduler

import (
	"testing"
	"time"
)

func TestParseHHMM(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		def      string
		wantH    int
		wantM    int
	}{
		{"valid", "21:30", "09:00", 21, 30},
		{"leading zero", "09:05", "21:00", 9, 5},
		{"clamps hour", "36:10", "09:00", 23, 10},
		{"clamps minute", "10:99", "09:00", 10, 59},
		{"empty falls back", "", "09:30", 9, 30},
		{"garbage falls back", "soon", "09:30", 9, 30},
		{"missing minute falls back", "12", "07:15", 7, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := ParseHHMM(tt.in, tt.def)
			if h != tt.wantH || m != tt.wantM {
				t.Errorf("ParseHHMM(%q, %q) = %d:%d, want %d:%d", tt.in, tt.def, h, m, tt.wantH, tt.wantM)
			}
		})
	}
}

func TestResolveZone(t *testing.T) {
	if got := ResolveZone("America/New_York", "UTC"); got.String() != "America/New_York" {
		t.Errorf("got %v, want America/New_York", got)
	}
	if got := ResolveZone("Atlantis/Nowhere", "America/New_York"); got.String() != "America/New_York" {
		t.Errorf("got %v, want fallback America/New_York", got)
	}
	if got := ResolveZone("Atlantis/Nowhere", "Atlantis/Elsewhere"); got != time.UTC {
		t.Errorf("got %v, want UTC", got)
	}
}

func TestDayIndex(t *testing.T) {
	enrolled := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"enrollment day is day 1", time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC), 1},
		{"next day is day 2", time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC), 2},
		{"a week in", time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC), 8},
		{"before enrollment clamps to 1", time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayIndex(enrolled, tt.date, time.UTC); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDayIndex_UsesLocalCalendarDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading zone: %v", err)
	}
	// 2026-03-02 01:00 UTC is still 2026-03-01 evening in New York, so the
	// enrollment's local date anchors day 1 there.
	enrolled := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	if got := DayIndex(enrolled, date, loc); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestIsQuietTime(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name  string
		t     time.Time
		start string
		end   string
		want  bool
	}{
		{"late evening in wrapping window", at(23, 0), "22:00", "09:00", true},
		{"early morning in wrapping window", at(8, 59), "22:00", "09:00", true},
		{"window end is exclusive", at(9, 0), "22:00", "09:00", false},
		{"window start is inclusive", at(22, 0), "22:00", "09:00", true},
		{"midday outside wrapping window", at(12, 0), "22:00", "09:00", false},
		{"inside plain window", at(14, 0), "13:00", "15:00", true},
		{"outside plain window", at(15, 0), "13:00", "15:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQuietTime(tt.t, tt.start, tt.end); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReminderRunLocal(t *testing.T) {
	cfg := Config{
		RemindAfter:     12 * time.Hour,
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "09:00",
		FallbackTime:    "09:30",
	}

	t.Run("candidate outside quiet hours is kept", func(t *testing.T) {
		delivery := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		got := cfg.ReminderRunLocal(delivery)
		want := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("quiet candidate moves to same-day fallback", func(t *testing.T) {
		// Delivery 12:00 + 12h lands at midnight; fallback 09:30 on the
		// candidate's date is after it.
		delivery := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		got := cfg.ReminderRunLocal(delivery)
		want := time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("fallback not after candidate is pushed a day", func(t *testing.T) {
		// Delivery 11:00 + 12h lands at 23:00; 09:30 that day is already
		// past, so the reminder moves to 09:30 tomorrow.
		delivery := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
		got := cfg.ReminderRunLocal(delivery)
		want := time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestMatchesFrequency(t *testing.T) {
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	if !matchesFrequency(monday, "daily") || !matchesFrequency(sunday, "daily") {
		t.Error("daily should match every day")
	}
	if !matchesFrequency(monday, "weekdays") || matchesFrequency(saturday, "weekdays") {
		t.Error("weekdays should match Monday but not Saturday")
	}
	if !matchesFrequency(saturday, "weekends") || !matchesFrequency(sunday, "weekends") || matchesFrequency(monday, "weekends") {
		t.Error("weekends should match Saturday and Sunday only")
	}
}
