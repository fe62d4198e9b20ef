package store_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nainya/memsetup/internal/metrics"
	"github.com/nainya/memsetup/internal/store"
	"github.com/nainya/memsetup/internal/store/storetest"
	"github.com/nainya/memsetup/internal/telemetry"
)

func TestListClassesAndCreateSchema(t *testing.T) {
	fake := storetest.New(t)
	client := store.NewClient(fake.URL)
	ctx := context.Background()

	classes, err := client.ListClasses(ctx)
	require.NoError(t, err)
	assert.Empty(t, classes)

	status, err := client.CreateSchema(ctx, []byte(`{"class":"Demo","properties":[]}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	classes, err = client.ListClasses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Demo"}, classes)
}

func TestCreateSchemaConflictIsStatusError(t *testing.T) {
	fake := storetest.New(t)
	fake.AddClass("Demo")
	client := store.NewClient(fake.URL)

	_, err := client.CreateSchema(context.Background(), []byte(`{"class":"Demo"}`))

	var statusErr *store.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "/v1/schema", statusErr.Path)
}

func TestObjectLifecycle(t *testing.T) {
	fake := storetest.New(t)
	client := store.NewClient(fake.URL)
	ctx := context.Background()

	id, err := client.CreateObject(ctx, "Demo", map[string]any{"content": "hello", "tags": []string{"sample"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	raw, err := client.GetObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", gjson.GetBytes(raw, "properties.content").String())

	require.NoError(t, client.ReplaceObject(ctx, id, []byte(`{"class":"Demo","id":"`+id+`","properties":{"content":"bye"}}`)))
	assert.Equal(t, "bye", fake.Object(id)["properties"].(map[string]any)["content"])

	require.NoError(t, client.DeleteObject(ctx, id))
	assert.Nil(t, fake.Object(id))

	err = client.DeleteObject(ctx, id)
	var statusErr *store.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestCreateObjectWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"class":"Demo"}`))
	}))
	defer srv.Close()

	_, err := store.NewClient(srv.URL).CreateObject(context.Background(), "Demo", nil)
	assert.ErrorIs(t, err, store.ErrMissingID)
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	_, err := store.NewClient(srv.URL).ListClasses(context.Background())
	assert.ErrorIs(t, err, store.ErrMalformedResponse)
}

func TestQueryIDsFilteredAndLimited(t *testing.T) {
	fake := storetest.New(t)
	tagged1 := fake.Seed("Demo", map[string]any{"tags": []string{"sample"}})
	fake.Seed("Demo", map[string]any{"tags": []string{"real"}})
	tagged2 := fake.Seed("Demo", map[string]any{"tags": []string{"x", "sample"}})
	fake.Seed("Other", map[string]any{"tags": []string{"sample"}})
	client := store.NewClient(fake.URL)
	ctx := context.Background()

	ids, err := client.QueryIDs(ctx, "Demo", store.ContainsAny("tags", "sample"), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{tagged1, tagged2}, ids)

	ids, err = client.QueryIDs(ctx, "Demo", nil, 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestGraphQLErrors(t *testing.T) {
	fake := storetest.New(t)
	fake.FailGraphQL = true

	_, err := store.NewClient(fake.URL).QueryIDs(context.Background(), "Demo", nil, 10)

	var gqlErr *store.GraphQLError
	require.True(t, errors.As(err, &gqlErr))
	assert.Equal(t, []string{"query failed"}, gqlErr.Messages)
}

func TestBuildIDQuery(t *testing.T) {
	assert.Equal(t,
		`{ Get { Demo(where: {path: ["tags"], operator: ContainsAny, valueText: ["sample"]}, limit: 50) { _additional { id } } } }`,
		store.BuildIDQuery("Demo", store.ContainsAny("tags", "sample"), 50))
	assert.Equal(t,
		`{ Get { Demo { _additional { id } } } }`,
		store.BuildIDQuery("Demo", nil, 0))
}

func TestTransportRecordsMetrics(t *testing.T) {
	fake := storetest.New(t)
	m := metrics.NewMetrics()
	client := store.NewClient(fake.URL, store.WithMetrics(m))
	ctx := context.Background()

	_, err := client.ListClasses(ctx)
	require.NoError(t, err)
	_ = client.DeleteObject(ctx, "missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRequestsTotal.WithLabelValues(store.OpListSchema, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRequestsTotal.WithLabelValues(store.OpDeleteObject, "error")))
}

func TestTransportSpanCoversBodyRead(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := telemetry.Setup(ctx, "memsetup", telemetry.Options{Exporter: exporter})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	const delay = 50 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"classes": [`))
		w.(http.Flusher).Flush()
		time.Sleep(delay)
		_, _ = w.Write([]byte(`{"class": "Demo"}]}`))
	}))
	defer srv.Close()

	m := metrics.NewMetrics()
	classes, err := store.NewClient(srv.URL, store.WithMetrics(m)).ListClasses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Demo"}, classes)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "store."+store.OpListSchema, spans[0].Name)
	assert.GreaterOrEqual(t, spans[0].EndTime.Sub(spans[0].StartTime), delay)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRequestsTotal.WithLabelValues(store.OpListSchema, "success")))
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := store.NewClient(url).ListClasses(context.Background())
	require.Error(t, err)
	var statusErr *store.StatusError
	assert.False(t, errors.As(err, &statusErr))
}
