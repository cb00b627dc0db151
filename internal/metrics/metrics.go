// Package metrics exposes node activity to Prometheus.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "minichain"

// Metrics holds the collectors updated by the chain node
type Metrics struct {
	registerer prometheus.Registerer

	BlocksMined    prometheus.Counter
	PowAttempts    prometheus.Counter
	MiningDuration prometheus.Histogram
	ChainHeight    prometheus.Gauge
	MempoolSize    prometheus.Gauge
}

// New creates the node metrics and registers them with registerer.
// A nil registerer leaves them unregistered.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		registerer: registerer,
		BlocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_mined_total",
			Help:      "Number of blocks mined by this node",
		}),
		PowAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pow_attempts_total",
			Help:      "Number of nonces tried by successful mining runs",
		}),
		MiningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mining_duration_seconds",
			Help:      "Time spent searching for a nonce",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_height",
			Help:      "Height of the chain tip",
		}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Number of transactions waiting to be mined",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.BlocksMined, m.PowAttempts, m.MiningDuration, m.ChainHeight, m.MempoolSize,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
	}
	return m, nil
}

// ObserveMinedBlock records a successful mining run
func (m *Metrics) ObserveMinedBlock(attempts uint64, elapsed time.Duration) {
	m.BlocksMined.Inc()
	m.PowAttempts.Add(float64(attempts))
	m.MiningDuration.Observe(elapsed.Seconds())
}

// SetChainHeight records the height of the tip
func (m *Metrics) SetChainHeight(height uint64) {
	m.ChainHeight.Set(float64(height))
}

// SetMempoolSize records the number of pending transactions
func (m *Metrics) SetMempoolSize(size int) {
	m.MempoolSize.Set(float64(size))
}

// WatchUTXO registers a collector reporting the size of counter on every
// scrape. It is a no-op for unregistered metrics.
func (m *Metrics) WatchUTXO(counter UTXOCounter) error {
	if m.registerer == nil {
		return nil
	}
	if err := m.registerer.Register(NewUTXOCollector(counter)); err != nil {
		return errors.Wrap(err, "failed to register UTXO collector")
	}
	return nil
}
