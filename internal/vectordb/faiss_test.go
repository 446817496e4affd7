//go:build faiss

package vectordb

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/transcript-qa/internal/document"
)

func TestFaissRepository(t *testing.T) {
	repo, err := NewRepository(Config{Type: "faiss", DistanceType: Cosine, IndexFactory: "Flat"})
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &FaissRepository{}, repo)

	_, err = repo.Search([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	ids, err := repo.Add([]Entry{testEntry("east", 10, 0), testEntry("north", 0, 3), testEntry("diag", 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, ids)
	assert.Equal(t, 2, repo.Dimension())

	results, err := repo.Search([]float32{5, 0.1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "east", results[0].Segment.Text)
	assert.Equal(t, "diag", results[1].Segment.Text)
}

// TestFaissMatchesMemory HNSW的结果应与精确搜索基本一致
func TestFaissMatchesMemory(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entries := make([]Entry, 300)
	for i := range entries {
		vec := make([]float32, 32)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		entries[i] = Entry{Vector: vec, Segment: document.Segment{Text: fmt.Sprintf("seg-%d", i)}}
	}

	approx, err := NewFaissRepository(Config{DistanceType: Cosine, IndexFactory: "HNSW32"})
	require.NoError(t, err)
	defer approx.Close()
	exact, err := NewMemoryRepository(Config{DistanceType: Cosine})
	require.NoError(t, err)

	_, err = approx.Add(entries)
	require.NoError(t, err)
	_, err = exact.Add(entries)
	require.NoError(t, err)

	results, err := approx.Search(entries[17].Vector, 1)
	require.NoError(t, err)
	expected, err := exact.Search(entries[17].Vector, 1)
	require.NoError(t, err)
	assert.Equal(t, expected[0].ID, results[0].ID)
}
