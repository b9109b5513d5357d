package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		intentsInitiated,
		intentsTerminal,
		pollChecks,
		webhookDeliveries,
		commits,
		providerCallDuration,
		sweptIntents,
	)
}

var (
	intentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_initiated_total",
			Help: "Purchase intents handed to a provider, by provider kind.",
		},
		[]string{"provider"},
	)

	// status: success|failed; code is the bounded normalized code set.
	intentsTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_terminal_total",
			Help: "Purchase intents reaching a terminal state, by provider, status and code.",
		},
		[]string{"provider", "status", "code"},
	)

	// result: open|terminal|error
	pollChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_poll_checks_total",
			Help: "Transaction status checks performed by the poller.",
		},
		[]string{"provider", "result"},
	)

	// result: ok|rejected|duplicate|uncorrelated
	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_deliveries_total",
			Help: "Card vault webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// result: ok|error|unmarked
	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_commits_total",
			Help: "One-time purchase commits against the business backend.",
		},
		[]string{"result"},
	)

	// job: expired|commit_retried|watch_resumed
	sweptIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_swept_intents_total",
			Help: "Intents handled by the background sweeps, by job.",
		},
		[]string{"job"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_provider_call_duration_seconds",
			Help:    "Latency of outbound provider calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "op"},
	)
)

func IncIntentInitiated(provider string) {
	intentsInitiated.WithLabelValues(norm(provider)).Inc()
}

func IncIntentTerminal(provider, status, code string) {
	intentsTerminal.WithLabelValues(norm(provider), norm(status), norm(code)).Inc()
}

func IncPollCheck(provider, result string) {
	pollChecks.WithLabelValues(norm(provider), result).Inc()
}

func IncWebhook(result string) {
	webhookDeliveries.WithLabelValues(result).Inc()
}

func IncCommit(result string) {
	commits.WithLabelValues(result).Inc()
}

// ObserveProviderCall is used as: defer metrics.ObserveProviderCall("walletqr", "initiate", time.Now())
func ObserveProviderCall(provider, op string, start time.Time) {
	providerCallDuration.WithLabelValues(norm(provider), op).Observe(time.Since(start).Seconds())
}

func AddSwept(job string, n int) {
	if n > 0 {
		sweptIntents.WithLabelValues(job).Add(float64(n))
	}
}
