package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "0 3 * * 1-5", "30 14 1 * *"} {
		c, err := ParseCron(expr)
		if err != nil {
			t.Errorf("ParseCron(%q): %v", expr, err)
			continue
		}
		if c.String() != expr {
			t.Errorf("String() = %q, want %q", c.String(), expr)
		}
	}
	for _, expr := range []string{"not a cron", "* * * *", "61 * * * *", "*/5 * * * * *"} {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q): expected error", expr)
		}
	}
}

func TestCronNext(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	tests := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"0 12 * * *", at(10, 0), at(12, 0)},
		{"0 12 * * *", at(12, 0), at(12, 0).AddDate(0, 0, 1)},
		{"*/5 * * * *", at(10, 3), at(10, 5)},
		{"*/5 * * * *", at(10, 5), at(10, 10)},
		{"0 * * * *", at(10, 30), at(11, 0)},
	}
	for _, tt := range tests {
		c, err := ParseCron(tt.expr)
		if err != nil {
			t.Fatalf("ParseCron(%q): %v", tt.expr, err)
		}
		if got := c.Next(tt.from); !got.Equal(tt.want) {
			t.Errorf("%q Next(%v) = %v, want %v", tt.expr, tt.from, got, tt.want)
		}
	}
}
