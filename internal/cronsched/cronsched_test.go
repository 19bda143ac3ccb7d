package cronsched

import (
	"testing"
	"time"
)

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"* * * * *":     true,
		"*/5 * * * *":   true,
		"0 9 * * 1-5":   true,
		"not a cron":    false,
		"* * * *":       false,
	}
	for expr, want := range cases {
		if got := Valid(expr); got != want {
			t.Errorf("Valid(%q) = %v, want %v", expr, got, want)
		}
	}
}

func TestDueEveryMinuteAlwaysMatches(t *testing.T) {
	if !Due("* * * * *", time.Now()) {
		t.Fatal("wildcard expression should always be due")
	}
}

func TestDueMalformedIsNotDue(t *testing.T) {
	if Due("garbage", time.Now()) {
		t.Fatal("malformed expression must not be reported due")
	}
}
