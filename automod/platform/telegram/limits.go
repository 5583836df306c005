package telegram

import (
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

const (
	// Bot API guidance: about 30 requests per second overall
	globalRequestsPerSecond = 30
	// and about 20 messages per minute into any one group
	chatMessagesPerMinute = 20
)

type limiters struct {
	global  *rate.Limiter
	perChat *xsync.Map[string, *slidingwindow.Limiter]
}

func newLimiters() *limiters {
	return &limiters{
		global:  rate.NewLimiter(rate.Limit(globalRequestsPerSecond), globalRequestsPerSecond),
		perChat: xsync.NewMap[string, *slidingwindow.Limiter](),
	}
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// Whether one more message may be sent to the destination right now. Counts the message if so.
func (l *limiters) allowChat(destination string) bool {
	lim, _ := l.perChat.Compute(destination, func(old *slidingwindow.Limiter, loaded bool) (*slidingwindow.Limiter, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		lim, _ := slidingwindow.NewLimiter(time.Minute, chatMessagesPerMinute, windowFunc)
		return lim, xsync.UpdateOp
	})
	return lim.Allow()
}
