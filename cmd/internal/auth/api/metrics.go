package authapi

import "github.com/prometheus/client_golang/prometheus"

// Reason labels for authFailures.
const (
	failReasonBadCredentials = "bad_credentials"
	failReasonBadToken       = "bad_token"
	failReasonConflict       = "conflict"
)

// authFailures counts rejected auth attempts by reason.
// Use RegisterMetrics to register this with a Prometheus registry.
var authFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "parley_auth_failures_total",
		Help: "Total number of rejected authentication attempts",
	},
	[]string{"reason"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus
// registry. Panics if registration fails (prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(authFailures)
}
