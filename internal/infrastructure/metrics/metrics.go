package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PurchasesTotal tracks purchase events by outcome (issued, replayed, unmatched, error)
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourpass_purchases_total",
		Help: "Total number of purchase events processed",
	}, []string{"outcome"})

	// TokensIssued tracks newly minted tokens per resource
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourpass_tokens_issued_total",
		Help: "Total number of access tokens created",
	}, []string{"resource"})

	// TokenCollisions counts regenerated tokens after a store-level clash
	TokenCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tourpass_token_collisions_total",
		Help: "Total number of token collisions on insert",
	})

	// RedemptionsTotal tracks redemption attempts by outcome
	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourpass_redemptions_total",
		Help: "Total number of token redemption attempts",
	}, []string{"outcome"})

	// NotificationsTotal tracks access-link deliveries
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourpass_notifications_total",
		Help: "Total number of access-link notifications attempted",
	}, []string{"result"})

	// StoreDuration tracks token store call latency
	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tourpass_store_duration_seconds",
		Help:    "Histogram of token store operation duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// RateLimited counts requests rejected by the HTTP rate limiter
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourpass_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"route"})
)
