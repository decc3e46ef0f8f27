package o11y

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request lifecycle counters. Dropped callbacks are labelled by reason
// so an operator can tell expected drops (unknown_identity) apart from
// data-integrity drops (ownership_conflict) that need attention.
var (
	CallbacksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idp_callbacks_received_total",
		Help: "Inbound authentication callbacks received from the trust network.",
	})

	CallbacksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idp_callbacks_dropped_total",
		Help: "Inbound callbacks discarded before reaching the request store.",
	}, []string{"reason"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idp_decisions_total",
		Help: "Decisions submitted to the trust network.",
	}, []string{"outcome", "status"})

	Onboardings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idp_onboardings_total",
		Help: "Identity onboarding attempts.",
	}, []string{"status"})
)
