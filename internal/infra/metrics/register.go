package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var collectors []prometheus.Collector

func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// Register adds the payment collectors to reg. Collectors already present
// in reg are skipped, so calling it twice against the same registry is safe.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// MustRegister registers the collectors with the default registry served by /metrics.
func MustRegister() {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		panic(err)
	}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
