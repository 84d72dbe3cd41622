package updates

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/internal/atomicfile"
	"github.com/meniwap/telecraftor-core/tl"
)

// StateStorage persists and restores the engine's State (spec.md §4.5,
// "Initialization": "If no state is persisted, call updates.getState...
// Otherwise restore from disk").
type StateStorage interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, s State) error
}

// AccessHasher resolves a channel id to the InputChannel a
// getChannelDifference call needs (spec.md §4.5, "with the appropriate
// InputChannel resolved from the entity cache").
type AccessHasher interface {
	ResolveChannel(ctx context.Context, channelID int64) (tl.InputChannel, error)
}

// Source is the RPC seam the engine calls through. Its methods already
// return decoded domain values: the real TL schema that would decode the
// wire reply is an external collaborator out of scope here (spec.md §1),
// so Source stands in for "whatever invoked updates.getState /
// updates.getDifference / updates.getChannelDifference and decoded the
// reply".
type Source interface {
	GetState(ctx context.Context) (tl.UpdatesState, error)
	GetDifference(ctx context.Context, req tl.GetDifferenceRequest) (tl.DifferenceClass, error)
	GetChannelDifference(ctx context.Context, req tl.GetChannelDifferenceRequest) (tl.ChannelDifferenceClass, error)
}

type fileRecord struct {
	Pts        int           `json:"pts"`
	Qts        int           `json:"qts"`
	Date       int           `json:"date"`
	Seq        int           `json:"seq"`
	ChannelPts map[int64]int `json:"channels"`
}

// FileStorage is a StateStorage backed by a single atomically-written JSON
// file (spec.md §4.7's atomic-write rule applies equally to updates state).
type FileStorage struct {
	Path string
}

func (f FileStorage) Load(_ context.Context) (State, bool, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, errors.Wrap(err, "read updates state file")
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return State{}, false, errors.Wrap(err, "decode updates state file")
	}
	if rec.ChannelPts == nil {
		rec.ChannelPts = map[int64]int{}
	}
	return State{Pts: rec.Pts, Qts: rec.Qts, Date: rec.Date, Seq: rec.Seq, ChannelPts: rec.ChannelPts}, true, nil
}

func (f FileStorage) Save(_ context.Context, s State) error {
	rec := fileRecord{Pts: s.Pts, Qts: s.Qts, Date: s.Date, Seq: s.Seq, ChannelPts: s.ChannelPts}
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode updates state file")
	}
	return atomicfile.Write(f.Path, raw, 0o600)
}
