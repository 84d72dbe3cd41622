// Package updates implements the update-reconciliation engine (spec.md
// §4.5): it keeps the persisted (pts, qts, date, seq) tuple plus per-channel
// pts in sync with the server's update stream, invoking difference calls to
// close any detected gap.
package updates

import "github.com/meniwap/telecraftor-core/tl"

// State is the persisted (pts, qts, date, seq) tuple plus per-channel pts
// map spec.md §3 defines under "Updates state".
type State struct {
	Pts        int
	Qts        int
	Date       int
	Seq        int
	ChannelPts map[int64]int
}

func (s State) clone() State {
	cp := make(map[int64]int, len(s.ChannelPts))
	for k, v := range s.ChannelPts {
		cp[k] = v
	}
	s.ChannelPts = cp
	return s
}

// Applied is the side-effect value one container application or difference
// integration produces (spec.md §4.5, "Applied output"). StateReset and
// ChannelReset signal that a differenceTooLong/channelDifferenceTooLong was
// encountered, so the caller should purge any caches that assumed
// continuity (spec.md §4.5, "difference recovery contract").
type Applied struct {
	NewMessages []int64
	Updates     []tl.UpdateClass
	Users       []tl.UserClass
	Chats       []tl.ChatClass

	StateReset   bool
	ChannelReset bool
	ChannelID    int64
}
