package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func TestObserveMinedBlock(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.ObserveMinedBlock(1200, 250*time.Millisecond)
	m.ObserveMinedBlock(800, time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.BlocksMined))
	assert.Equal(t, float64(2000), testutil.ToFloat64(m.PowAttempts))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MiningDuration))
}

func TestGauges(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.SetChainHeight(7)
	m.SetMempoolSize(3)

	assert.Equal(t, float64(7), testutil.ToFloat64(m.ChainHeight))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.MempoolSize))
}

func TestRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	assert.Error(t, err, "registering twice must fail")
}

func TestUTXOCollector(t *testing.T) {
	collector := NewUTXOCollector(fixedCounter(5))

	expected := `
# HELP minichain_utxo_count Number of unspent transaction outputs
# TYPE minichain_utxo_count gauge
minichain_utxo_count 5
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected)))
}

func TestWatchUTXO(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry)
	require.NoError(t, err)

	require.NoError(t, m.WatchUTXO(fixedCounter(2)))
	count, err := testutil.GatherAndCount(registry, "minichain_utxo_count")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unregistered, err := New(nil)
	require.NoError(t, err)
	assert.NoError(t, unregistered.WatchUTXO(fixedCounter(2)))
}

func TestListen(t *testing.T) {
	t.Run("Serves metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m, err := New(registry)
		require.NoError(t, err)
		m.SetChainHeight(4)

		server, addr, err := Listen("127.0.0.1:0", registry)
		require.NoError(t, err)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(t, server.Shutdown(ctx))
		}()

		resp, err := http.Get("http://" + addr.String() + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "minichain_chain_height 4")
	})

	t.Run("Invalid address", func(t *testing.T) {
		_, _, err := Listen("invalid-address", prometheus.NewRegistry())
		require.Error(t, err)
	})
}
