package ratequery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prommodel "github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/ratequery"
)

func promServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.Form.Get("query"), "http_server_requests_seconds_count")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_TopRoute(t *testing.T) {
	srv := promServer(t, `{
		"status": "success",
		"data": {
			"resultType": "vector",
			"result": [
				{"metric": {"uri": "/api/v1/address"}, "value": [1717243200, "3.5"]},
				{"metric": {"uri": "/api/v1/transfer/submit"}, "value": [1717243200, "12.25"]},
				{"metric": {"uri": "/api/v1/config"}, "value": [1717243200, "0.1"]}
			]
		}
	}`)

	c, err := ratequery.New(srv.URL, "", "", time.Second)
	require.NoError(t, err)

	top, err := c.TopRoute(context.Background(), time.Unix(1717243200, 0))
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "/api/v1/transfer/submit", top.Route)
	assert.InDelta(t, 12.25, top.Rate, 1e-9)
}

func TestClient_TopRoute_Empty(t *testing.T) {
	srv := promServer(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`)

	c, err := ratequery.New(srv.URL, "", "", time.Second)
	require.NoError(t, err)

	top, err := c.TopRoute(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, top)
}

func TestClient_TopRoute_Error(t *testing.T) {
	srv := promServer(t, `{"status":"error","errorType":"bad_data","error":"parse error"}`)

	c, err := ratequery.New(srv.URL, "", "", time.Second)
	require.NoError(t, err)

	_, err = c.TopRoute(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, model.KindQuery, model.KindOf(err))
}

func TestHighest_CustomLabel(t *testing.T) {
	vector := prommodel.Vector{
		{Metric: prommodel.Metric{"route": "/a"}, Value: 1},
		{Metric: prommodel.Metric{"route": "/b"}, Value: 1},
	}
	top := ratequery.Highest(vector, "route")
	require.NotNil(t, top)
	assert.Equal(t, "/a", top.Route)
}
