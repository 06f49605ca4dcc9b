package connmgr

import (
	"time"

	"github.com/agentstation/swarmcast/pkg/constants"
)

// quality tracks heartbeat round trips and losses. Owned by the run goroutine.
type quality struct {
	alpha   float64
	penalty float64
	ref     time.Duration // round trip that scores zero

	rtt     time.Duration
	hasRTT  bool
	loss    float64
	losses  uint64
	samples uint64
}

func newQuality(ref time.Duration) *quality {
	return &quality{
		alpha:   constants.QualityRTTAlpha,
		penalty: constants.QualityLossPenalty,
		ref:     ref,
	}
}

// observe folds a round trip into the EWMA and eases the loss penalty.
func (q *quality) observe(rtt time.Duration) {
	if !q.hasRTT {
		q.rtt = rtt
		q.hasRTT = true
	} else {
		q.rtt = time.Duration(q.alpha*float64(rtt) + (1-q.alpha)*float64(q.rtt))
	}
	q.loss /= 2
	if q.loss < 0.01 {
		q.loss = 0
	}
	q.samples++
}

// lost records an unanswered ping.
func (q *quality) lost() {
	q.loss = min(1, q.loss+q.penalty)
	q.losses++
}

// score is 1 for an instant, loss-free link and falls toward 0 as the
// smoothed round trip approaches ref or pings go unanswered.
func (q *quality) score() float64 {
	s := 1.0
	if q.hasRTT && q.ref > 0 {
		s -= float64(q.rtt) / float64(q.ref)
	}
	return min(max(s-q.loss, 0), 1)
}
