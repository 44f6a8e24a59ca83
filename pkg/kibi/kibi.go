// Package kibi formats and parses byte sizes in powers of 1024
package kibi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidByteSizeString = errors.New("invalid byte size string")

var units = []string{"bytes", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes rounds down to the largest whole unit, eg "35 MB"
func FormatBytes(b int64) string {
	i := 0
	for i < len(units)-1 && b >= 1024 {
		b /= 1024
		i++
	}
	return fmt.Sprintf("%v %v", b, units[i])
}

// ParseBytes accepts a whole number followed by an optional unit.
// Units are case insensitive, and may be abbreviated to one letter, eg "32 MB", "32mb", "32m".
func ParseBytes(v string) (int64, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, ErrInvalidByteSizeString
	}
	value, err := strconv.ParseInt(v[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidByteSizeString, err)
	}
	suffix := strings.TrimSpace(v[end:])
	if suffix == "" || suffix == "bytes" || suffix == "b" {
		return value, nil
	}
	for i := 1; i < len(units); i++ {
		unit := strings.ToLower(units[i])
		if suffix == unit || suffix == unit[:1] {
			return value << (10 * i), nil
		}
	}
	return 0, ErrInvalidByteSizeString
}
