package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sessionDecryptFailures) }

var sessionDecryptFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "session_decrypt_failures_total",
		Help: "Session carriers that could not be decrypted and were treated as absent.",
	},
)

func IncSessionDecryptFailure() { sessionDecryptFailures.Inc() }
