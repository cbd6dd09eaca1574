package transfer

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetryAfterSeconds(t *testing.T) {
	d, ok := ParseRetryAfter("2")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	d, ok = ParseRetryAfter(" 0 ")
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestParseRetryAfterDate(t *testing.T) {
	// HTTP dates carry a GMT zone; http.ParseTime rejects RFC1123's "UTC"
	future := time.Now().Add(5 * time.Second).UTC().Format(http.TimeFormat)
	d, ok := ParseRetryAfter(future)
	assert.True(t, ok)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 5*time.Second)

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	d, ok = ParseRetryAfter(past)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}

func TestParseRetryAfterInvalid(t *testing.T) {
	_, ok := ParseRetryAfter("")
	assert.False(t, ok)
	_, ok = ParseRetryAfter("soon")
	assert.False(t, ok)
	_, ok = ParseRetryAfter("-3")
	assert.False(t, ok)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, backoffCap+backoffCap/2)
	}
	// later attempts never collapse below the base floor
	assert.GreaterOrEqual(t, Backoff(6), backoffBase)
}
