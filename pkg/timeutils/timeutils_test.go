package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 9, Minute: 5}, c)
	assert.Equal(t, "09:05", c.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "aa:bb", "1:2:3"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestClockAt(t *testing.T) {
	day := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	got := Clock{Hour: 18, Minute: 0}.At(day, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), got)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2024-03-10T15:04:05Z", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("01/02/2024", time.UTC)
	assert.Error(t, err)
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	b := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	assert.True(t, SameDay(a, b, time.UTC))
	assert.False(t, SameDay(a, b.Add(2*time.Minute), time.UTC))
}
