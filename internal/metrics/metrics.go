package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NotificationsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubewatch_notifications_received_total",
			Help: "Inbound webhook notifications by handling result",
		},
		[]string{"result"},
	)

	EntriesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tubewatch_entries_dropped_total",
			Help: "Feed entries dropped for missing required fields",
		},
	)

	DeliveriesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubewatch_deliveries_completed_total",
			Help: "Dispatched deliveries by terminal status",
		},
		[]string{"status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tubewatch_dispatch_duration_seconds",
			Help:    "Duration of the download-then-notify pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

// Results recorded on NotificationsReceived.
const (
	ResultAccepted          = "accepted"
	ResultDuplicate         = "duplicate"
	ResultSignatureMismatch = "signature_mismatch"
	ResultInvalidXML        = "invalid_xml"
)

func Init() {
	prometheus.MustRegister(NotificationsReceived, EntriesDropped, DeliveriesCompleted, DispatchDuration)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
