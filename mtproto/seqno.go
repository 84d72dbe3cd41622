package mtproto

import "sync/atomic"

// SeqNoGen is the per-session seqno counter (spec.md §4.4): content-related
// messages get an odd, monotonically increasing seqno; pure-service
// messages get an even one and do not advance the counter.
type SeqNoGen struct {
	counter int32
}

// Next returns the next seqno for a message, advancing the counter only if
// contentRelated is true.
func (g *SeqNoGen) Next(contentRelated bool) int32 {
	if contentRelated {
		n := atomic.AddInt32(&g.counter, 1)
		return (n-1)*2 + 1
	}
	return atomic.LoadInt32(&g.counter) * 2
}

// Reset zeroes the counter, used when the session-id is regenerated
// (spec.md §4.4, "Reset when the session-id is regenerated").
func (g *SeqNoGen) Reset() {
	atomic.StoreInt32(&g.counter, 0)
}
