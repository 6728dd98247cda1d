package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexOptionsValidate(t *testing.T) {
	o := NewIndexOptions()
	o.EmbeddingOptions.APIKey = "sk-test"
	require.NoError(t, o.Complete())
	assert.NoError(t, o.Validate())

	o.EmbeddingOptions.APIKey = ""
	o.IndexOptions.BatchSize = 0
	o.RecordsOptions.MergedDir = ""
	o.RecordsOptions.WebDir = ""
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.api-key is required")
	assert.Contains(t, err.Error(), "index.batch-size must be positive")
	assert.Contains(t, err.Error(), "records: at least one of merged-dir, web-dir is required")
}

func TestIndexOptionsConfig(t *testing.T) {
	o := NewIndexOptions()
	cfg := o.Config()
	assert.Same(t, o.IndexOptions, cfg.IndexOptions)
	assert.Same(t, o.EmbeddingOptions, cfg.EmbeddingOptions)
}
