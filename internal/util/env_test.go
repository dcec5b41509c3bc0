package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"on", false, true},
		{"TRUE", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
		{"", true, true},
	}
	for _, c := range cases {
		t.Setenv("TEST_BOOL", c.value)
		if got := ParseBoolEnv("TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := ParseIntEnv("TEST_INT", 7); got != 42 {
		t.Errorf("ParseIntEnv = %d, want 42", got)
	}

	t.Setenv("TEST_INT", "not-a-number")
	if got := ParseIntEnv("TEST_INT", 7); got != 7 {
		t.Errorf("ParseIntEnv on garbage = %d, want default 7", got)
	}

	t.Setenv("TEST_INT", "")
	if got := ParseIntEnv("TEST_INT", 7); got != 7 {
		t.Errorf("ParseIntEnv on empty = %d, want default 7", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	if got := GetEnv("TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv = %q, want value", got)
	}
	t.Setenv("TEST_STR", "")
	if got := GetEnv("TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("GetEnv on empty = %q, want fallback", got)
	}
}
