package util

import (
	"fmt"
	"strconv"
)

// ParseIntDefault parses s as an int, returning def when s is empty or not a number.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParsePositiveInt returns def when s is empty and rejects anything that is
// not an integer above zero.
func ParsePositiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("want a positive integer, got %q", s)
	}
	return v, nil
}
