package enforce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var enforcementCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupmod_enforcement_actions",
	Help: "Number of enforcement actions attempted, by action and outcome",
}, []string{"action", "status"})

var enforcementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "groupmod_enforcement_duration_sec",
	Help: "Duration of enforcement platform calls",
}, []string{"action"})
