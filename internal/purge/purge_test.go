package purge

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/memsetup/internal/metrics"
	"github.com/nainya/memsetup/internal/store"
	"github.com/nainya/memsetup/internal/store/storetest"
)

func setupPurger(t *testing.T, batch int) (*Purger, *storetest.Server, *metrics.Metrics) {
	t.Helper()
	fake := storetest.New(t)
	m := metrics.NewMetrics()
	p := NewPurger(store.NewClient(fake.URL), Config{SampleTag: "sample", BatchSize: batch, MaxRounds: 50}, nil, m)
	return p, fake, m
}

func TestClearTaggedDeletesOnlySamples(t *testing.T) {
	p, fake, m := setupPurger(t, 100)
	var tagged []string
	var untagged []string
	for i := 0; i < 3; i++ {
		tagged = append(tagged, fake.Seed("Demo", map[string]any{"tags": []string{"sample"}}))
		untagged = append(untagged, fake.Seed("Demo", map[string]any{"tags": []string{"real"}}))
	}
	untagged = append(untagged, fake.Seed("Demo", map[string]any{"content": "no tags"}))
	otherCollection := fake.Seed("Other", map[string]any{"tags": []string{"sample"}})

	res, err := p.ClearTagged(context.Background(), "Demo")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Deleted)
	assert.True(t, res.Exhausted)
	for _, id := range tagged {
		assert.Nil(t, fake.Object(id))
	}
	for _, id := range untagged {
		assert.NotNil(t, fake.Object(id))
	}
	assert.NotNil(t, fake.Object(otherCollection))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsDeletedTotal))
}

func TestClearAllEmptyCollection(t *testing.T) {
	p, fake, _ := setupPurger(t, 100)

	res, err := p.ClearAll(context.Background(), "Demo")
	require.NoError(t, err)

	assert.Zero(t, res.Matched)
	assert.True(t, res.Exhausted)
	assert.Zero(t, fake.CountRequests(http.MethodDelete, "/v1/objects/"))
}

func TestClearAllPaginatesPastLimit(t *testing.T) {
	p, fake, _ := setupPurger(t, 2)
	for i := 0; i < 5; i++ {
		fake.Seed("Demo", map[string]any{"n": i})
	}

	res, err := p.ClearAll(context.Background(), "Demo.json")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Deleted)
	assert.Equal(t, 4, res.Rounds) // 2 + 2 + 1, then an empty query
	assert.Zero(t, fake.Count())
}

func TestClearAllContinuesPastDeleteFailures(t *testing.T) {
	p, fake, m := setupPurger(t, 100)
	a := fake.Seed("Demo", nil)
	b := fake.Seed("Demo", nil)
	c := fake.Seed("Demo", nil)
	fake.FailDelete[b] = true

	res, err := p.ClearAll(context.Background(), "Demo")
	require.NoError(t, err)

	assert.Nil(t, fake.Object(a))
	assert.NotNil(t, fake.Object(b))
	assert.Nil(t, fake.Object(c))
	// Round 2 only finds b, which already failed, and stops without retrying it.
	assert.Equal(t, 2, res.Rounds)
	assert.False(t, res.Exhausted)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, fake.CountRequests(http.MethodDelete, "/v1/objects/"+b))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionFailuresTotal.WithLabelValues("clear-all")))
}

func TestClearQueryFailureAborts(t *testing.T) {
	p, fake, _ := setupPurger(t, 100)
	fake.Seed("Demo", map[string]any{"tags": []string{"sample"}})
	fake.FailGraphQL = true

	_, err := p.ClearTagged(context.Background(), "Demo")

	var gqlErr *store.GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	assert.Zero(t, fake.CountRequests(http.MethodDelete, "/v1/objects/"))
	assert.Equal(t, 1, fake.Count())
}

func TestClearRespectsMaxRounds(t *testing.T) {
	fake := storetest.New(t)
	for i := 0; i < 10; i++ {
		fake.Seed("Demo", nil)
	}
	p := NewPurger(store.NewClient(fake.URL), Config{BatchSize: 3, MaxRounds: 2}, nil, nil)

	res, err := p.ClearAll(context.Background(), "Demo")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 6, res.Deleted)
	assert.False(t, res.Exhausted)
	assert.Equal(t, 4, fake.Count())
}

func TestClearInvalidCollection(t *testing.T) {
	p, fake, _ := setupPurger(t, 100)

	_, err := p.ClearAll(context.Background(), "lowercase")

	require.Error(t, err)
	assert.Empty(t, fake.Requests())
}
