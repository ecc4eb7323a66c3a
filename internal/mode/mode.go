package mode

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Max is the largest accepted permission value.
const Max os.FileMode = 0o777

var (
	ErrInvalidMode    = errors.New("invalid octal mode")
	ErrModeOutOfRange = errors.New("mode out of range")
)

// Parse converts an octal permission string such as "644", "0755" or
// "0o700" to a FileMode. Values above 0o777 are rejected.
func Parse(s string) (os.FileMode, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0O")
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}

	v, err := strconv.ParseUint(digits, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	if os.FileMode(v) > Max {
		return 0, fmt.Errorf("%w: %q exceeds %o", ErrModeOutOfRange, s, Max)
	}
	return os.FileMode(v), nil
}
