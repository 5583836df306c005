package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("groupmod")

var messagesHandled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_messages_handled",
	Help: "Number of inbound chat messages handled",
})

var messagesFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_messages_failed",
	Help: "Number of inbound chat messages whose processing returned an error",
})

var commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupmod_commands_handled",
	Help: "Number of admin commands handled, by command and status",
}, []string{"command", "status"})

var repliesFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_replies_failed",
	Help: "Number of replies to a group that could not be sent",
})

var currentUpdate = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "groupmod_current_update",
	Help: "Id of the last inbound update handled",
})
