package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistrationsTotal counts identity registrations by status
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_registrations_total",
			Help: "Total number of identity registration attempts",
		},
		[]string{"status"},
	)

	// ClaimsTotal counts claim generations by status
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_claims_total",
			Help: "Total number of claim generation attempts",
		},
		[]string{"status"},
	)

	// ClaimDuration tracks claim generation time
	ClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "registry_claim_duration_seconds",
			Help:    "Claim generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ClaimUserCount tracks how many users each claim aggregates over
	ClaimUserCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "registry_claim_user_count",
			Help:    "Number of users aggregated per claim",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// GrantsIssued counts persistent capability grants by kind
	GrantsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_grants_issued_total",
			Help: "Total number of persistent grants issued",
		},
		[]string{"kind"},
	)

	// DecryptRequests counts gateway decryption requests by status
	DecryptRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_decrypt_requests_total",
			Help: "Total number of gateway decryption requests",
		},
		[]string{"status"},
	)
)
