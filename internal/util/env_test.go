package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"yes", false, true},
		{" ON ", false, true},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, c := range cases {
		t.Setenv("LEADPIPE_TEST_BOOL", c.val)
		if got := ParseBoolEnv("LEADPIPE_TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.val, c.def, got, c.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	cases := []struct {
		val  string
		want time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"24h", 24 * time.Hour},
		{"15", 15 * time.Second},
		{"-5s", time.Minute},
		{"soon", time.Minute},
	}
	for _, c := range cases {
		t.Setenv("LEADPIPE_TEST_DURATION", c.val)
		if got := ParseDurationEnv("LEADPIPE_TEST_DURATION", time.Minute); got != c.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", c.val, got, c.want)
		}
	}
}

func TestGetEnvAndParseIntEnv(t *testing.T) {
	t.Setenv("LEADPIPE_TEST_STR", "  ")
	if got := GetEnv("LEADPIPE_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("GetEnv blank = %q", got)
	}
	t.Setenv("LEADPIPE_TEST_STR", "value")
	if got := GetEnv("LEADPIPE_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv = %q", got)
	}
	t.Setenv("LEADPIPE_TEST_INT", "12")
	if got := ParseIntEnv("LEADPIPE_TEST_INT", 8); got != 12 {
		t.Errorf("ParseIntEnv = %d", got)
	}
	t.Setenv("LEADPIPE_TEST_INT", "-1")
	if got := ParseIntEnv("LEADPIPE_TEST_INT", 8); got != 8 {
		t.Errorf("ParseIntEnv negative = %d", got)
	}
}
