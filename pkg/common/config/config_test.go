package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: development
nats:
  url: nats://127.0.0.1:4222
db:
  url: postgres://localhost:5432/nft_activity
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Pipeline.MaxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FlushInterval)
	assert.Equal(t, 50, cfg.Pipeline.CommitChunkSize)
	assert.Equal(t, 10000, cfg.Dedup.MaxSize)
	assert.Equal(t, time.Hour, cfg.Dedup.TTL)
	assert.Equal(t, 0.8, cfg.Scorer.MinConfidence)
	assert.Equal(t, 0.7, cfg.Scorer.MinQuality)
	assert.Equal(t, 3, cfg.Consumer.MaxRetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.Consumer.RetryBaseDelay)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
pipeline:
  max_batch_size: 25
  flush_interval: 2s
scorer:
  min_confidence: 0.5
  allow_ambiguous: true
`))
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Pipeline.MaxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.FlushInterval)
	assert.Equal(t, 0.5, cfg.Scorer.MinConfidence)
	assert.True(t, cfg.Scorer.AllowAmbiguous)
	// untouched sections keep their defaults
	assert.Equal(t, 50, cfg.Pipeline.CommitChunkSize)
}

func TestParseRejectsMissingRequired(t *testing.T) {
	_, err := Parse([]byte(`
environment: development
nats:
  url: nats://127.0.0.1:4222
`))
	assert.Error(t, err, "missing db.url must fail validation")
}

func TestParseRejectsBadEnvironment(t *testing.T) {
	_, err := Parse([]byte(`
environment: staging
nats:
  url: nats://127.0.0.1:4222
db:
  url: postgres://localhost:5432/nft_activity
`))
	assert.Error(t, err)
}
