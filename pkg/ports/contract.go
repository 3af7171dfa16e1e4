package ports

import (
	"context"
	"testing"
	"time"

	"github.com/riverbedai/riverbed/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a RunStore
// implementation adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(runID, "intake")
		state.Data["score"] = 0.9
		state.Counters.VisitNode("intake")

		err := store.Save(ctx, runID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.CurrentNode, loaded.CurrentNode)
		assert.Equal(t, 1, loaded.Counters.TotalSteps)
		// JSON persistence may coerce numeric types; just check presence.
		assert.NotNil(t, loaded.Data["score"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, runID, domain.NewState(runID, "intake"))
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, id1, domain.NewState(id1, "intake"))
		_ = store.Save(ctx, id2, domain.NewState(id2, "intake"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}

// FactLogContract verifies append-only semantics of a FactLog.
func FactLogContract(t *testing.T, log FactLog) {
	ctx := context.Background()

	first := domain.Fact{ID: "f1", Text: "sky is blue", Confidence: 0.9}
	second := domain.Fact{ID: "f2", Text: "sky is grey", Confidence: 0.6, Supersedes: "f1"}

	require.NoError(t, log.Append(ctx, []domain.Fact{first}))
	require.NoError(t, log.Append(ctx, []domain.Fact{second}))

	facts, err := log.All(ctx)
	require.NoError(t, err)

	// Both records must survive: corrections supersede, never replace.
	var ids []string
	for _, f := range facts {
		ids = append(ids, f.ID)
	}
	assert.Contains(t, ids, "f1")
	assert.Contains(t, ids, "f2")
}
