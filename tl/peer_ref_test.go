package tl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/tl"
)

func TestNormalizeUsername(t *testing.T) {
	require.Equal(t, "alice", tl.NormalizeUsername("@Alice"))
	require.Equal(t, "alice", tl.NormalizeUsername("ALICE"))
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "+15551234", tl.NormalizePhone("+1 (555) 1234"))
	require.Equal(t, "+15551234", tl.NormalizePhone("15551234"))
}

func TestParseInputRef(t *testing.T) {
	cases := []struct {
		in   string
		want tl.InputRef
	}{
		{"self", tl.InputRef{Self: true}},
		{"@Alice", tl.InputRef{Username: "alice"}},
		{"+1 555 1234", tl.InputRef{Phone: "+15551234"}},
		{"user:42", tl.InputRef{Resolved: &tl.PeerRef{Kind: tl.PeerUser, ID: 42}}},
		{"chat:7", tl.InputRef{Resolved: &tl.PeerRef{Kind: tl.PeerChat, ID: 7}}},
		{"channel:9", tl.InputRef{Resolved: &tl.PeerRef{Kind: tl.PeerChannel, ID: 9}}},
	}
	for _, c := range cases {
		got, err := tl.ParseInputRef(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestParseInputRefRejectsGarbage(t *testing.T) {
	_, err := tl.ParseInputRef("not-a-ref")
	require.ErrorIs(t, err, tl.ErrBadInputRef)
}

func TestIsPtsUpdate(t *testing.T) {
	pts, count, ok := tl.IsPtsUpdate(&tl.UpdateNewMessage{Pts: 105, PtsCount: 1})
	require.True(t, ok)
	require.Equal(t, 105, pts)
	require.Equal(t, 1, count)

	_, _, ok = tl.IsPtsUpdate(&tl.UpdateUserStatus{})
	require.False(t, ok)
}

func TestIsChannelPtsUpdate(t *testing.T) {
	chID, pts, count, ok := tl.IsChannelPtsUpdate(&tl.UpdateNewChannelMessage{ChannelID: 777, Pts: 50, PtsCount: 1})
	require.True(t, ok)
	require.Equal(t, int64(777), chID)
	require.Equal(t, 50, pts)
	require.Equal(t, 1, count)
}
