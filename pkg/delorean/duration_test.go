package delorean

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"45", 45},
		{"45s", 45},
		{"10m", 600},
		{"2h", 7200},
		{"90d", 7_776_000},
		{"1w", 604_800},
		{"3M", 3 * 2_629_743},
		{"1y", 31_556_926},
		{"-1d", -86_400},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseDuration(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, text := range []string{"", "d", "1.5h", "abc", "10x", "1 d"} {
		_, err := ParseDuration(text)
		assert.ErrorIs(t, err, ErrInvalidDuration, "text %q", text)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2030, time.March, 4, 5, 6, 0, 0, time.Local)

	got, err := ParseDate("2030-03-04 05:06")
	require.NoError(t, err)
	assert.Equal(t, float64(want.Unix()), got)

	got, err = ParseDate("2030-03-04 05:06:07")
	require.NoError(t, err)
	assert.Equal(t, float64(want.Unix()+7), got)
}

func TestParseDateInvalid(t *testing.T) {
	for _, text := range []string{"", "2030-03-04", "2030/03/04 05:06", "2030-13-04 05:06"} {
		_, err := ParseDate(text)
		assert.ErrorIs(t, err, ErrInvalidDate, "text %q", text)
	}
}
