package telegram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var updatesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_telegram_updates_received",
	Help: "Number of updates received from the Bot API",
})

var apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupmod_telegram_api_requests",
	Help: "Number of Bot API requests, by method and outcome",
}, []string{"method", "status"})

var apiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "groupmod_telegram_api_duration_sec",
	Help: "Duration of Bot API requests",
}, []string{"method"})
