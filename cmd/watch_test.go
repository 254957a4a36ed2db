package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchedule_IsUniformFiftyMinutes(t *testing.T) {
	schedule, err := scheduleParser.Parse(defaultSchedule)
	require.NoError(t, err)

	t0 := time.Date(2026, 8, 1, 13, 7, 0, 0, time.UTC)

	first := schedule.Next(t0)
	second := schedule.Next(first)

	assert.Equal(t, 50*time.Minute, first.Sub(t0))
	assert.Equal(t, 50*time.Minute, second.Sub(first))
}

func TestScheduleParser_AcceptsStandardCronToo(t *testing.T) {
	_, err := scheduleParser.Parse("0 */2 * * *")
	assert.NoError(t, err)
}
