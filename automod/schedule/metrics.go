package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pendingPosts = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "groupmod_scheduled_posts_pending",
	Help: "Number of scheduled posts waiting to be delivered",
})

var postsScheduled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_scheduled_posts_created",
	Help: "Number of posts scheduled",
})

var postsCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_scheduled_posts_cancelled",
	Help: "Number of scheduled posts cancelled before delivery",
})

var postsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupmod_scheduled_posts_delivered",
	Help: "Number of scheduled post delivery attempts, by outcome",
}, []string{"status"})

var crossPosts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "groupmod_cross_posts_sent",
	Help: "Number of cross-post messages delivered",
})
