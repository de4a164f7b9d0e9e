package services

import (
	"context"
	"testing"
	"time"

	"github.com/inmohub/backend-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkHealthScanUnionsAndDedupes(t *testing.T) {
	repo := newFakeChunkStatRepo()
	repo.failing = []models.ChunkStat{
		{ChunkID: "chunk-a", SuccessCount: 1, FailCount: 5},
		{ChunkID: "chunk-b", SuccessCount: 0, FailCount: 3},
	}
	repo.stale = []models.ChunkStat{
		{ChunkID: "chunk-b", LastUsed: time.Now().Add(-90 * 24 * time.Hour)},
		{ChunkID: "chunk-c", LastUsed: time.Now().Add(-61 * 24 * time.Hour)},
	}

	report, err := NewChunkHealthScanner(repo, 60*24*time.Hour, nil).Scan(context.Background())

	require.NoError(t, err)
	assert.Len(t, report.Failing, 2)
	assert.Len(t, report.Stale, 2)
	// chunk-b同时命中两类，并集里只出现一次
	assert.Equal(t, []string{"chunk-a", "chunk-b", "chunk-c"}, report.ProblemIDs)
}

func TestChunkHealthScanEmpty(t *testing.T) {
	report, err := NewChunkHealthScanner(newFakeChunkStatRepo(), 0, nil).Scan(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.ProblemIDs)
}

func TestChunkHealthScanPropagatesError(t *testing.T) {
	repo := newFakeChunkStatRepo()
	repo.err = errConnRefused

	_, err := NewChunkHealthScanner(repo, 0, nil).Scan(context.Background())
	assert.Error(t, err)
}
