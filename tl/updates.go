package tl

// UpdateClass is any individual update carried inside an updates container
// or delivered standalone as updateShort*.
type UpdateClass interface {
	isUpdate()
}

// UpdatesClass is the top-level sum type the RPC sender hands to the
// updates engine: a full container, a combined/short form, or the trivial
// updatesTooLong marker.
type UpdatesClass interface {
	isUpdates()
}

// Updates is the common container shape (what the updates engine ultimately
// normalizes every variant into before handing it to callers, mirroring the
// teacher's applyCombined/applyPts/applyQts, which all build a *tg.Updates
// as their handler payload).
type Updates struct {
	Updates []UpdateClass
	Users   []UserClass
	Chats   []ChatClass
}

func (*Updates) isUpdates() {}

// UpdatesCombined is the full update container with seq/date (spec.md
// §4.5 "Applying an update container").
type UpdatesCombined struct {
	Updates []UpdateClass
	Users   []UserClass
	Chats   []ChatClass
	Date    int
	Seq     int
	SeqStart int
}

func (*UpdatesCombined) isUpdates() {}

// UpdateShortMessage is a compact single-new-message notification; the
// updates engine normalizes it into a synthetic UpdateNewMessage before
// applying (it carries no seq, so §4.5 rule 1 applies: pts still gates it).
type UpdateShortMessage struct {
	ID         int
	UserID     int64
	Pts        int
	PtsCount   int
	Date       int
}

func (*UpdateShortMessage) isUpdates() {}

// UpdatesTooLong tells the client its update queue is too far behind to
// deliver incrementally; equivalent to an immediate full gap.
type UpdatesTooLong struct{}

func (UpdatesTooLong) isUpdates() {}

// UpdateNewMessage carries a new message plus the pts counter it advances.
type UpdateNewMessage struct {
	MessageID int64
	Pts       int
	PtsCount  int
}

func (*UpdateNewMessage) isUpdate() {}

// UpdateDeleteMessages reports deleted message ids.
type UpdateDeleteMessages struct {
	MessageIDs []int64
	Pts        int
	PtsCount   int
}

func (*UpdateDeleteMessages) isUpdate() {}

// UpdateReadHistoryInbox reports an inbox read-marker advance.
type UpdateReadHistoryInbox struct {
	MaxID    int
	Pts      int
	PtsCount int
}

func (*UpdateReadHistoryInbox) isUpdate() {}

// UpdateNewChannelMessage is UpdateNewMessage's per-channel counterpart.
type UpdateNewChannelMessage struct {
	ChannelID int64
	MessageID int64
	Pts       int
	PtsCount  int
}

func (*UpdateNewChannelMessage) isUpdate() {}

// UpdateEditChannelMessage reports an edited channel message.
type UpdateEditChannelMessage struct {
	ChannelID int64
	MessageID int64
	Pts       int
	PtsCount  int
}

func (*UpdateEditChannelMessage) isUpdate() {}

// UpdateDeleteChannelMessages reports deleted channel message ids.
type UpdateDeleteChannelMessages struct {
	ChannelID  int64
	MessageIDs []int64
	Pts        int
	PtsCount   int
}

func (*UpdateDeleteChannelMessages) isUpdate() {}

// UpdateChannelTooLong forces a getChannelDifference for ChannelID even
// without a pts mismatch (SPEC_FULL.md §4.5, supplemented feature).
type UpdateChannelTooLong struct {
	ChannelID int64
	Pts       int
	HasPts    bool
}

func (*UpdateChannelTooLong) isUpdate() {}

// UpdatePtsChanged signals that the global pts was reset server-side
// out-of-band; the teacher treats this as "recover state", see
// state_apply.go's ptsChanged handling.
type UpdatePtsChanged struct{}

func (UpdatePtsChanged) isUpdate() {}

// UpdateEncryptedMessage carries a qts-gated secret-chat message
// (spec.md §4.5, "Updates that carry qts").
type UpdateEncryptedMessage struct {
	Qts int
}

func (*UpdateEncryptedMessage) isUpdate() {}

// UpdateUserStatus and similar counter-less updates apply immediately.
type UpdateUserStatus struct {
	UserID int64
	Online bool
}

func (*UpdateUserStatus) isUpdate() {}

// IsPtsUpdate reports whether u carries a global pts/pts_count pair,
// returning them if so (spec.md §4.5, first bullet).
func IsPtsUpdate(u UpdateClass) (pts, ptsCount int, ok bool) {
	switch u := u.(type) {
	case *UpdateNewMessage:
		return u.Pts, u.PtsCount, true
	case *UpdateDeleteMessages:
		return u.Pts, u.PtsCount, true
	case *UpdateReadHistoryInbox:
		return u.Pts, u.PtsCount, true
	default:
		return 0, 0, false
	}
}

// IsChannelPtsUpdate reports whether u carries a per-channel pts/pts_count
// pair, returning the channel id and counters if so (spec.md §4.5, third
// bullet).
func IsChannelPtsUpdate(u UpdateClass) (channelID int64, pts, ptsCount int, ok bool) {
	switch u := u.(type) {
	case *UpdateNewChannelMessage:
		return u.ChannelID, u.Pts, u.PtsCount, true
	case *UpdateEditChannelMessage:
		return u.ChannelID, u.Pts, u.PtsCount, true
	case *UpdateDeleteChannelMessages:
		return u.ChannelID, u.Pts, u.PtsCount, true
	default:
		return 0, 0, 0, false
	}
}

// IsQtsUpdate reports whether u carries a qts counter (spec.md §4.5,
// second bullet).
func IsQtsUpdate(u UpdateClass) (qts int, ok bool) {
	if enc, isEnc := u.(*UpdateEncryptedMessage); isEnc {
		return enc.Qts, true
	}
	return 0, false
}
