package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/estate-compliance/internal/config"
	"github.com/bryanwahyu/estate-compliance/internal/infra/ai/openai"
	"github.com/bryanwahyu/estate-compliance/internal/infra/db/sqlkv"
	"github.com/bryanwahyu/estate-compliance/internal/infra/kv/memory"
	"github.com/bryanwahyu/estate-compliance/internal/infra/upstream"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Driver = config.DriverMemory
		s, closeFn, err := openStore(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, s)
		assert.NoError(t, s.Ping(ctx))
		assert.NoError(t, closeFn())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "cache.db")
		s, closeFn, err := openStore(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &sqlkv.Store{}, s)
		require.NoError(t, s.Set(ctx, "analysis:b-1", []byte(`{}`)))
		assert.NoError(t, closeFn())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Store.Driver = "etcd"
		_, _, err := openStore(ctx, cfg)
		assert.ErrorContains(t, err, "unknown store driver")
	})
}

func TestCollaborators(t *testing.T) {
	cfg := &config.Config{}
	cfg.Upstream.Provider = config.ProviderWebhook
	cfg.Upstream.WebhookURL = "http://hook"

	buildings, analyses := collaborators(cfg)
	assert.Nil(t, buildings)
	require.IsType(t, &upstream.AnalysisClient{}, analyses)
	assert.Equal(t, "http://hook", analyses.(*upstream.AnalysisClient).URL)

	cfg.Upstream.Provider = config.ProviderOpenAI
	cfg.Upstream.BuildingsURL = "http://estate/api"
	cfg.OpenAI.APIKey = "sk-test"
	buildings, analyses = collaborators(cfg)
	require.IsType(t, &upstream.BuildingClient{}, buildings)
	ai, ok := analyses.(*openai.Client)
	require.True(t, ok)
	assert.Same(t, buildings, ai.Buildings)
}
