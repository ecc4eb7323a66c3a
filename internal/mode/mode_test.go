package mode

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want os.FileMode
	}{
		{"644", 0o644},
		{"755", 0o755},
		{"0755", 0o755},
		{"0o700", 0o700},
		{"0", 0},
		{"777", 0o777},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		in  string
		err error
	}{
		{"999", ErrInvalidMode},
		{"", ErrInvalidMode},
		{"rwx", ErrInvalidMode},
		{"-644", ErrInvalidMode},
		{"0o", ErrInvalidMode},
		{"1000", ErrModeOutOfRange},
		{"4755", ErrModeOutOfRange},
	}
	for _, tt := range tests {
		_, err := Parse(tt.in)
		require.ErrorIs(t, err, tt.err, tt.in)
	}
}
