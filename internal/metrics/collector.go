package metrics

import "github.com/prometheus/client_golang/prometheus"

// UTXOCounter is implemented by the UTXO set
type UTXOCounter interface {
	Count() int
}

// UTXOCollector reports the number of unspent outputs at scrape time
type UTXOCollector struct {
	counter   UTXOCounter
	utxoCount *prometheus.Desc
}

func NewUTXOCollector(counter UTXOCounter) *UTXOCollector {
	return &UTXOCollector{
		counter: counter,
		utxoCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "utxo", "count"),
			"Number of unspent transaction outputs",
			nil,
			nil,
		),
	}
}

func (c *UTXOCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.utxoCount
}

func (c *UTXOCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.utxoCount, prometheus.GaugeValue, float64(c.counter.Count()))
}
