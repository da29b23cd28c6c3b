package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. Constructed against an explicit
// registerer so tests can use a private registry.
type Metrics struct {
	OrdersCreated     prometheus.Counter
	OrdersCancelled   prometheus.Counter
	PaymentsInitiated prometheus.Counter

	// Callback outcomes: applied, duplicate, unknown, conflict, error.
	Callbacks *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Name:      "orders_created_total",
			Help:      "Orders successfully placed.",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled by customers.",
		}),
		PaymentsInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Name:      "payments_initiated_total",
			Help:      "STK pushes sent to the gateway.",
		}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Name:      "payment_callbacks_total",
			Help:      "Payment callbacks by reconciliation outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.OrdersCreated, m.OrdersCancelled, m.PaymentsInitiated, m.Callbacks)
	return m
}

// Default registers against the global registry and returns the /metrics
// handler alongside.
func Default() (*Metrics, http.Handler) {
	return New(prometheus.DefaultRegisterer), promhttp.Handler()
}
