package datalake

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rezkam/flotilla/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(id string) *domain.Result {
	value := 5
	return &domain.Result{
		ID:          id,
		JobID:       "job-" + id,
		A:           2,
		B:           3,
		Operation:   "sum",
		Value:       &value,
		ProcessedBy: "bot-1",
		ProcessedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		DurationMS:  100,
		Status:      domain.ResultStatusSucceeded,
	}
}

func TestFileSinkAppend(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	sink.now = func() time.Time {
		return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	}

	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, NewRecord(testResult("r1"))))
	require.NoError(t, sink.Append(ctx, NewRecord(testResult("r2"))))

	path := filepath.Join(dir, "results-2026-08-24.ndjson")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ID)
	assert.Equal(t, "r2", records[1].ID)
	assert.Equal(t, SchemaVersion, records[0].SchemaVersion)
	require.NotNil(t, records[0].Result)
	assert.Equal(t, 5, *records[0].Result)
}

func TestFileSinkPartitionsByDay(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	day := time.Date(2026, 8, 23, 23, 59, 0, 0, time.UTC)
	sink.now = func() time.Time { return day }
	require.NoError(t, sink.Append(context.Background(), NewRecord(testResult("r1"))))

	day = day.Add(2 * time.Minute)
	require.NoError(t, sink.Append(context.Background(), NewRecord(testResult("r2"))))

	_, err = os.Stat(filepath.Join(dir, "results-2026-08-23.ndjson"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "results-2026-08-24.ndjson"))
	assert.NoError(t, err)
}

func TestFileSinkFailureRecordKeepsNullResult(t *testing.T) {
	res := testResult("r1")
	res.Value = nil
	errText := "timeout-in-processing"
	res.Error = &errText
	res.Status = domain.ResultStatusFailed

	rec := NewRecord(res)
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":null`)
	assert.Contains(t, string(data), `"error":"timeout-in-processing"`)
}
