package tl

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// PeerKind discriminates the three peer flavors MTProto distinguishes
// (spec.md §3, "Peer reference").
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

// PeerRef is the resolved peer sum type.
type PeerRef struct {
	Kind PeerKind
	ID   int64
}

// InputPeer is the TL value most RPCs require: id plus access hash (unused
// for PeerChat, which spec.md §3 says "never carry an access-hash").
type InputPeer struct {
	Kind       PeerKind
	ID         int64
	AccessHash int64
}

// InputUser mirrors InputPeer for calls that specifically need a user.
type InputUser struct {
	ID         int64
	AccessHash int64
}

// InputChannel mirrors InputPeer for calls that specifically need a channel.
type InputChannel struct {
	ID         int64
	AccessHash int64
}

// ErrBadInputRef is returned when a string peer reference doesn't match any
// recognized form (spec.md §3).
var ErrBadInputRef = errors.New("peer: unrecognized input reference")

// InputRef is a caller-supplied, not-yet-resolved reference to a peer
// (spec.md §3, "peer input-ref"): a resolved PeerRef, a raw (kind,id) pair,
// one of the string forms, or the "self" sentinel.
type InputRef struct {
	// Resolved is set when the caller already has a concrete peer.
	Resolved *PeerRef
	// Username is set for "@name" references (already normalized).
	Username string
	// Phone is set for "+phone" references (already normalized).
	Phone string
	// Self is set for the "self" sentinel.
	Self bool
}

// ParseInputRef parses one of the string forms spec.md §3 defines:
// "@name", "+phone", "user:ID", "chat:ID", "channel:ID", "self".
func ParseInputRef(s string) (InputRef, error) {
	switch {
	case s == "self":
		return InputRef{Self: true}, nil
	case strings.HasPrefix(s, "@"):
		return InputRef{Username: NormalizeUsername(s)}, nil
	case strings.HasPrefix(s, "+"):
		return InputRef{Phone: NormalizePhone(s)}, nil
	case strings.HasPrefix(s, "user:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, "user:"), 10, 64)
		if err != nil {
			return InputRef{}, errors.Wrap(ErrBadInputRef, "user id")
		}
		return InputRef{Resolved: &PeerRef{Kind: PeerUser, ID: id}}, nil
	case strings.HasPrefix(s, "chat:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, "chat:"), 10, 64)
		if err != nil {
			return InputRef{}, errors.Wrap(ErrBadInputRef, "chat id")
		}
		return InputRef{Resolved: &PeerRef{Kind: PeerChat, ID: id}}, nil
	case strings.HasPrefix(s, "channel:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, "channel:"), 10, 64)
		if err != nil {
			return InputRef{}, errors.Wrap(ErrBadInputRef, "channel id")
		}
		return InputRef{Resolved: &PeerRef{Kind: PeerChannel, ID: id}}, nil
	default:
		return InputRef{}, ErrBadInputRef
	}
}

// NormalizeUsername implements spec.md §3's normalization rule:
// "lowercase, leading '@' stripped".
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(username, "@"))
}

// NormalizePhone implements spec.md §3's normalization rule:
// "leading '+' preserved, digits only".
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
