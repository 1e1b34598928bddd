package util

import "testing"

func TestParseIntDefault(t *testing.T) {
	cases := map[string]int{"": 7, "3": 3, "-2": -2, "x": 7, "1.5": 7}
	for in, want := range cases {
		if got := ParseIntDefault(in, 7); got != want {
			t.Fatalf("ParseIntDefault(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParsePositiveInt(t *testing.T) {
	if v, err := ParsePositiveInt("", 500); err != nil || v != 500 {
		t.Fatalf("empty: got %d, %v", v, err)
	}
	if v, err := ParsePositiveInt("42", 500); err != nil || v != 42 {
		t.Fatalf("42: got %d, %v", v, err)
	}
	for _, bad := range []string{"0", "-1", "ten"} {
		if _, err := ParsePositiveInt(bad, 500); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
