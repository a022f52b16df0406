package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordJSONOmitsZeroTimestamps(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(NewRecord("AI Art"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "last_stage_at")
	assert.NotContains(t, string(raw), "lease_expires_at")

	r := NewRecord("AI Art")
	r.LastStageAt = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	raw, err = json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_stage_at":"2024-03-01T12:00:00Z"`)

	var back Record
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.LastStageAt.Equal(r.LastStageAt))
	assert.True(t, back.LeaseExpiresAt.IsZero())
}
