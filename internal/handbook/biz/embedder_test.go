package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryText(t *testing.T) {
	assert.Equal(t, "Wie viele ECTS? BMI", QueryText("Wie viele ECTS?", "BMI"))
	assert.Equal(t, "Was ist bmi?", QueryText("Was ist bmi?", "BMI"))
	assert.Equal(t, "Was ist das?", QueryText("  Was ist das?  ", ""))
}

func TestQueryEmbedderEmbed(t *testing.T) {
	e := NewQueryEmbedder(&keywordEmbedder{}, time.Second)
	assert.Equal(t, []float32{1, 0.1}, e.Embed(context.Background(), "Mathe"))
}

func TestQueryEmbedderErrorYieldsEmptyVector(t *testing.T) {
	e := NewQueryEmbedder(&keywordEmbedder{fail: true}, 0)
	assert.Empty(t, e.Embed(context.Background(), "Mathe"))

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
}
