//go:build integration

package feed_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/experiments"
	"github.com/rafaeljc/bifrost/internal/feed"
	"github.com/rafaeljc/bifrost/internal/ruleengine"
	"github.com/rafaeljc/bifrost/internal/store"
	"github.com/rafaeljc/bifrost/internal/testsupport"
)

func TestPostgresSource_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	repo := store.NewPostgresStore(pgContainer.DB)
	src := feed.NewPostgresSource(repo)

	t.Run("empty tables yield empty documents", func(t *testing.T) {
		require.NoError(t, pgContainer.Reset(ctx))

		payload, err := src.Fetch(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(payload.Experiments))
		assert.JSONEq(t, `{}`, string(payload.Segments))
	})

	t.Run("definitions drive assignments", func(t *testing.T) {
		require.NoError(t, pgContainer.Reset(ctx))

		_, err := repo.Upsert(ctx, store.KindSegment, "north-america",
			json.RawMessage(`{"rule": {"operator": "OR", "parameters": {"storefront": {"arg": ["US", "CA"]}}}}`))
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, store.KindExperiment, "checkout", json.RawMessage(`{
			"experimentId": "exp-checkout",
			"startDate": "2024-01-01",
			"segments": ["north-america"],
			"variants": [{"name": "control", "percentage": 0.5}, {"name": "new", "percentage": 0.5}]
		}`))
		require.NoError(t, err)

		svc := experiments.NewService(catalog.New(nil), src, nil)
		require.NoError(t, svc.LoadSegmentsAndExperiments(ctx))

		res := svc.InExperiment(ctx, "checkout", "control", ruleengine.UserContext{Identity: "1000123", Storefront: "US"})
		assert.True(t, res.Result)
		assert.Equal(t, "control", res.Variant)

		// A deleted experiment disappears on the next load.
		require.NoError(t, repo.Delete(ctx, store.KindExperiment, "checkout"))
		_, err = repo.Upsert(ctx, store.KindExperiment, "banner", json.RawMessage(`{
			"experimentId": "exp-banner",
			"startDate": "2024-01-01",
			"variants": [{"name": "a", "percentage": 1}]
		}`))
		require.NoError(t, err)
		require.NoError(t, svc.LoadSegmentsAndExperiments(ctx))

		assert.False(t, svc.ExperimentActive("checkout"))
		assert.True(t, svc.ExperimentActive("banner"))
	})
}
