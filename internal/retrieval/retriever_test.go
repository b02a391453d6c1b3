package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetrieveRespectsLimits(t *testing.T) {
	r := NewCorpusRetriever(nil, zap.NewNop())

	got, err := r.Retrieve(context.Background(), "water main replacement project cost")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(got.Policies), MaxPolicies)
	assert.LessOrEqual(t, len(got.Precedents), MaxPrecedents)
	assert.NotEmpty(t, got.Policies)
	assert.NotEmpty(t, got.Precedents)
}

func TestRetrievePrefersKeywordMatches(t *testing.T) {
	corpus := []Document{
		{Kind: "precedent", Text: "Unrelated playground refurbishment notes"},
		{Kind: "precedent", Text: "Water main replacement completed under budget"},
	}
	r := NewCorpusRetriever(corpus, zap.NewNop())

	got, err := r.Retrieve(context.Background(), "water main rupture downtown")
	require.NoError(t, err)

	require.NotEmpty(t, got.Precedents)
	assert.Contains(t, got.Precedents[0], "Water main")
}

func TestRetrieveEmptyQueryStillReturnsContext(t *testing.T) {
	r := NewCorpusRetriever(nil, zap.NewNop())

	got, err := r.Retrieve(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, got.Policies)
}

func TestRetrieveDeterministic(t *testing.T) {
	r := NewCorpusRetriever(nil, zap.NewNop())

	first, err := r.Retrieve(context.Background(), "flood control riverside district")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := r.Retrieve(context.Background(), "flood control riverside district")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
