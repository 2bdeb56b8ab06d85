package store

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

func TestSpillWriteAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spill.jsonl")
	spill := NewSpill(path)

	result := &domain.Result{ID: uuid.New(), TargetName: "api", Status: domain.ResultStatusHealthy}
	require.NoError(t, spill.Write([]*domain.Result{result}, nil))

	var replayed []*domain.Result
	err := spill.Replay(func(results []*domain.Result, jobs []*domain.Job) error {
		replayed = append(replayed, results...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, result.ID, replayed[0].ID)

	// A second replay after a successful one finds nothing: the file was truncated.
	replayed = nil
	require.NoError(t, spill.Replay(func(results []*domain.Result, jobs []*domain.Job) error {
		replayed = append(replayed, results...)
		return nil
	}))
	assert.Empty(t, replayed)
}

func TestSpillReplayOnMissingFileIsNoop(t *testing.T) {
	spill := NewSpill(filepath.Join(t.TempDir(), "does-not-exist.jsonl"))
	err := spill.Replay(func(results []*domain.Result, jobs []*domain.Job) error {
		t.Fatal("apply should not be called when spill file is absent")
		return nil
	})
	assert.NoError(t, err)
}
