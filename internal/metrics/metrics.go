package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_transfers_total",
			Help: "Card to card transfers by outcome.",
		},
		[]string{"outcome"},
	)
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_transitions_total",
			Help: "Card lifecycle transitions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	numberAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "card_number_generation_attempts",
			Help:    "Draws needed to find an unused card number.",
			Buckets: []float64{1, 2, 3, 5, 10},
		},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
)

// Outcome names the result of an operation for metric labels.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch models.KindOf(err) {
	case models.KindNotFound:
		return "not_found"
	case models.KindConflict:
		return "conflict"
	case models.KindInvalid:
		return "invalid"
	case models.KindTransient:
		return "transient"
	case models.KindForbidden, models.KindUnauthorized:
		return "denied"
	default:
		return "error"
	}
}

// ObserveTransfer counts a finished transfer.
func ObserveTransfer(err error) {
	transfersTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObserveTransition counts a finished lifecycle transition.
func ObserveTransition(action string, err error) {
	transitionsTotal.WithLabelValues(action, Outcome(err)).Inc()
}

// ObserveNumberAttempts records how many numbers were drawn for one card.
func ObserveNumberAttempts(attempts int) {
	numberAttempts.Observe(float64(attempts))
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(method, route string, code int, duration time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(duration.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
