package datalake

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Exercises the GCS backend against a real bucket. Needs ambient
// credentials (ADC) and a bucket the caller may write to.
func TestGCSSinkAppendAndListDay(t *testing.T) {
	bucket := os.Getenv("FLOTILLA_TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("FLOTILLA_TEST_GCS_BUCKET not set, skipping GCS datalake test")
	}

	ctx := context.Background()
	sink, err := NewGCSSink(ctx, bucket)
	require.NoError(t, err)
	defer sink.Close()

	day := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return day }

	// Random ids so reruns against the same bucket never collide.
	id1, id2 := uuid.NewString(), uuid.NewString()
	require.NoError(t, sink.Append(ctx, NewRecord(testResult(id1))))
	require.NoError(t, sink.Append(ctx, NewRecord(testResult(id2))))

	records, err := sink.ListDay(ctx, day)
	require.NoError(t, err)

	byID := make(map[string]Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	require.Contains(t, byID, id1)
	require.Contains(t, byID, id2)

	got := byID[id1]
	assert.Equal(t, "job-"+id1, got.JobID)
	assert.Equal(t, "sum", got.Operation)
	require.NotNil(t, got.Result)
	assert.Equal(t, 5, *got.Result)
	assert.Equal(t, SchemaVersion, got.SchemaVersion)
}
