package metrics

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNilRegistryMethodsAreNoOps(t *testing.T) {
	var r *Registry
	r.AddCacheHits(1)
	r.AddCacheMisses(1)
	r.AddCacheEvictions(1)
	r.SetCacheSize(1, 2)
	r.RecordTick()
	r.RecordIngest(3, true)
	r.SetActionLogDepth(4)
	require.NoError(t, r.Stop(context.Background()))
}

func TestRegistryServesMetricsEndpoint(t *testing.T) {
	r := New()
	r.AddCacheHits(3)
	r.AddCacheMisses(1)
	r.RecordTick()
	r.RecordIngest(2, false)

	require.NoError(t, r.Start("127.0.0.1:0"))
	defer func() { require.NoError(t, r.Stop(context.Background())) }()

	resp, err := http.Get("http://" + r.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecordIngestSkipsZeroCount(t *testing.T) {
	r := New()
	r.RecordIngest(0, true)
}
