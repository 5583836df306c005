package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messageProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "groupmod_message_duration_sec",
	Help: "Total duration of inbound message processing",
})

var messageProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupmod_message_processed",
	Help: "Number of messages processed, by verdict",
}, []string{"verdict"})

var messageErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_message_errors",
	Help: "Number of messages which failed processing",
})

var floodDetectedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_floods_detected",
	Help: "Number of messages which tripped flood detection",
})

var warningIssuedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupmod_warnings_issued",
	Help: "Number of warnings issued, by source",
}, []string{"source"})

var escalationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupmod_escalations",
	Help: "Number of warning-limit escalations, by action",
}, []string{"action"})
