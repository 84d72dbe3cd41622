package updates_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/tl"
	"github.com/meniwap/telecraftor-core/updates"
)

type fakeSource struct {
	mu               sync.Mutex
	state            tl.UpdatesState
	difference       tl.DifferenceClass
	channelDiff      tl.ChannelDifferenceClass
	differenceCalls  int
	channelDiffCalls int
}

func (f *fakeSource) GetState(context.Context) (tl.UpdatesState, error) {
	return f.state, nil
}

func (f *fakeSource) GetDifference(context.Context, tl.GetDifferenceRequest) (tl.DifferenceClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.differenceCalls++
	return f.difference, nil
}

func (f *fakeSource) GetChannelDifference(context.Context, tl.GetChannelDifferenceRequest) (tl.ChannelDifferenceClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelDiffCalls++
	return f.channelDiff, nil
}

type fakeHasher struct{}

func (fakeHasher) ResolveChannel(_ context.Context, channelID int64) (tl.InputChannel, error) {
	return tl.InputChannel{ID: channelID, AccessHash: 1}, nil
}

func newEngine(t *testing.T, src *fakeSource) *updates.Engine {
	t.Helper()
	storage := updates.FileStorage{Path: filepath.Join(t.TempDir(), "state.json")}
	e := updates.New(storage, src, fakeHasher{}, nil)
	require.NoError(t, e.Init(context.Background()))
	return e
}

func TestInitFetchesStateWhenNotPersisted(t *testing.T) {
	src := &fakeSource{state: tl.UpdatesState{Pts: 10, Qts: 5, Date: 100, Seq: 1}}
	e := newEngine(t, src)
	st := e.State()
	require.Equal(t, 10, st.Pts)
	require.Equal(t, 5, st.Qts)
	require.Equal(t, 1, st.Seq)
}

func TestApplyCombinedInOrder(t *testing.T) {
	src := &fakeSource{state: tl.UpdatesState{Seq: 1}}
	e := newEngine(t, src)

	u := &tl.UpdatesCombined{
		Updates: []tl.UpdateClass{&tl.UpdateUserStatus{UserID: 1, Online: true}},
		Date:    200,
		Seq:     2,
	}
	require.NoError(t, e.Apply(context.Background(), u))

	applied := <-e.Output()
	require.Len(t, applied.Updates, 1)
	require.Equal(t, 2, e.State().Seq)
	require.Equal(t, 200, e.State().Date)
}

func TestApplyCombinedDropsAlreadyApplied(t *testing.T) {
	src := &fakeSource{state: tl.UpdatesState{Seq: 5}}
	e := newEngine(t, src)

	u := &tl.UpdatesCombined{Seq: 3, Date: 1}
	require.NoError(t, e.Apply(context.Background(), u))
	require.Equal(t, 5, e.State().Seq)
}

func TestApplyPtsGapTriggersDifference(t *testing.T) {
	src := &fakeSource{
		state: tl.UpdatesState{Pts: 0},
		difference: &tl.Difference{
			State: tl.UpdatesState{Pts: 50, Qts: 0, Date: 10, Seq: 0},
		},
	}
	e := newEngine(t, src)

	// declared = pts - ptsCount = 10 - 5 = 5, but local pts is 0: gap.
	u := &tl.Updates{Updates: []tl.UpdateClass{&tl.UpdateNewMessage{MessageID: 1, Pts: 10, PtsCount: 5}}}
	require.NoError(t, e.Apply(context.Background(), u))

	require.Equal(t, 1, src.differenceCalls)
	require.Equal(t, 50, e.State().Pts)
	<-e.Output() // the recovered difference's Applied value
}

func TestApplyChannelPtsGapTriggersChannelDifference(t *testing.T) {
	src := &fakeSource{
		channelDiff: &tl.ChannelDifferenceEmpty{Pts: 99, Final: true},
	}
	e := newEngine(t, src)

	// A channel seen for the first time starts at pts - pts_count, so its
	// first update never gaps: the first entry seeds channel 42 at pts 90,
	// then the second declares 100 - 5 = 95 > 90: gap.
	u := &tl.Updates{Updates: []tl.UpdateClass{
		&tl.UpdateNewChannelMessage{ChannelID: 42, MessageID: 1, Pts: 90, PtsCount: 1},
		&tl.UpdateNewChannelMessage{ChannelID: 42, MessageID: 2, Pts: 100, PtsCount: 5},
	}}
	require.NoError(t, e.Apply(context.Background(), u))

	require.Equal(t, 1, src.channelDiffCalls)
	require.Equal(t, 99, e.State().ChannelPts[42])
}

func TestDifferenceTooLongResetsState(t *testing.T) {
	src := &fakeSource{
		state:      tl.UpdatesState{Pts: 0},
		difference: &tl.DifferenceTooLong{Pts: 7},
	}
	e := newEngine(t, src)
	src.state = tl.UpdatesState{Pts: 7, Qts: 1, Date: 2, Seq: 3}

	u := &tl.Updates{Updates: []tl.UpdateClass{&tl.UpdateNewMessage{MessageID: 1, Pts: 10, PtsCount: 5}}}
	require.NoError(t, e.Apply(context.Background(), u))

	applied := <-e.Output()
	require.True(t, applied.StateReset)
	require.Equal(t, 7, e.State().Pts)
}
