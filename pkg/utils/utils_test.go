package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seconds int64
		short   bool
		want    string
	}{
		{name: "zero short", seconds: 0, short: true, want: "0 minutes, 0 seconds"},
		{name: "zero long", seconds: 0, short: false, want: "0 hours, 0 minutes, 0 seconds"},
		{name: "singular", seconds: 3661, short: true, want: "1 hour, 1 minute, 1 second"},
		{name: "plural", seconds: 7384, short: true, want: "2 hours, 3 minutes, 4 seconds"},
		{name: "minutes only", seconds: 125, short: true, want: "2 minutes, 5 seconds"},
		{name: "negative clamps", seconds: -5, short: true, want: "0 minutes, 0 seconds"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatDuration(tt.seconds, tt.short))
		})
	}
}

func TestFormatRoundedUnit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "45s", FormatRoundedUnit(45))
	assert.Equal(t, "45s", FormatRoundedUnit(-45))
	assert.Equal(t, "2m", FormatRoundedUnit(150))
	assert.Equal(t, "3h", FormatRoundedUnit(3*3600+5))
}
