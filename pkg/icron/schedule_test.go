package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_Standard(t *testing.T) {
	ref := time.Date(2026, 3, 1, 10, 17, 30, 0, time.UTC)

	info, err := GetTriggerInfo("*/15 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), info.Next)
	assert.Equal(t, 12*time.Minute+30*time.Second, info.TimeUntilNext)
}

func TestGetTriggerInfo_Every(t *testing.T) {
	ref := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("@every 1m", ref)
	require.NoError(t, err)
	assert.Equal(t, ref.Add(time.Minute), info.Next)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("not a cron")
	assert.Error(t, err)
	_, err = Parse("0 */5 * * * *")
	assert.Error(t, err, "seconds field is not accepted")
}
