package metrics

import (
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/minichain/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.NODE)

// Listen serves gatherer on /metrics at addr. The listener is bound before
// Listen returns, so address errors are reported to the caller.
func Listen(addr string, gatherer prometheus.Gatherer) (*http.Server, net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server stopped: %s", err)
		}
	}()

	log.Infof("Serving metrics on %s/metrics", listener.Addr())
	return server, listener.Addr(), nil
}
