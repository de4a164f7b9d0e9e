package services

import (
	"context"
	"errors"
	"testing"

	"github.com/inmohub/backend-go/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieverZoneNamespace(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, newFakeIndex(), "inventory", nil)

	assert.Equal(t, "inventory_tulum", r.ZoneNamespace("Tulum"))
	assert.Equal(t, "inventory_playa_del_carmen", r.ZoneNamespace(" Playa del Carmen "))
}

func TestRetrieverAppliesFilters(t *testing.T) {
	index := newFakeIndex()
	index.matches = []knowledge.VectorMatch{
		{ID: "c1", Score: 0.92, Metadata: map[string]interface{}{
			"development":  "Vista Real",
			"content_type": "pricing",
			"source":       "brochure.pdf",
			"page":         float64(3),
			"text":         "Lote 12: $500,000 MXN",
		}},
	}
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, index, "inventory", nil)

	chunks, err := r.Retrieve(context.Background(), "precio del lote 12", "Tulum", RetrieveOptions{
		Development: "Vista Real",
		ContentType: "pricing",
		TopK:        3,
	})

	require.NoError(t, err)
	assert.Equal(t, "inventory_tulum", index.lastNamespace)
	assert.Equal(t, 3, index.lastTopK)
	assert.Equal(t, knowledge.VectorFilter{
		"development":  "Vista Real",
		"content_type": "pricing",
	}, index.lastFilter)

	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)
	assert.Equal(t, "Tulum", chunks[0].Zone)
	assert.Equal(t, "Vista Real", chunks[0].Development)
	assert.Equal(t, 3, chunks[0].Page)
	assert.Equal(t, "Lote 12: $500,000 MXN", chunks[0].Text)
	assert.InDelta(t, 0.92, chunks[0].Score, 1e-9)
}

func TestRetrieverEmptyResultIsValid(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, newFakeIndex(), "inventory", nil)

	chunks, err := r.Retrieve(context.Background(), "algo sin resultados", "Tulum", RetrieveOptions{})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRetrieverRejectsEmptyQuestion(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vec: []float32{1}}, newFakeIndex(), "inventory", nil)

	_, err := r.Retrieve(context.Background(), "  ", "Tulum", RetrieveOptions{})
	assert.Error(t, err)
}

func TestRetrieverPropagatesEmbedError(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{err: errors.New("quota exceeded")}, newFakeIndex(), "inventory", nil)

	_, err := r.Retrieve(context.Background(), "precio", "Tulum", RetrieveOptions{})
	assert.Error(t, err)
}
