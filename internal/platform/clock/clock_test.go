package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	assert.Equal(t, start, c.Now())

	c.Advance(90 * 24 * time.Hour)
	assert.Equal(t, start.AddDate(0, 0, 90), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestReal_IsMonotonicEnough(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	assert.False(t, got.Before(before))
}
