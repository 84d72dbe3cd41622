package updates

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/meniwap/telecraftor-core/tl"
)

const (
	outputQueueCapacity   = 256
	channelDifferenceLimit = 100
)

// Engine is the L4 update-reconciliation state machine (spec.md §4.5).
// One Engine tracks one account's global (pts,qts,date,seq) plus every
// channel's pts; it is safe for concurrent use.
type Engine struct {
	storage StateStorage
	source  Source
	hasher  AccessHasher
	log     *zap.Logger
	tracer  trace.Tracer

	out chan Applied

	mu         sync.Mutex
	state      State
	recovering bool
	deferred   []tl.UpdatesClass
}

// New builds an Engine. Call Init before feeding it any containers.
func New(storage StateStorage, source Source, hasher AccessHasher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		storage: storage,
		source:  source,
		hasher:  hasher,
		log:     log,
		tracer:  otel.Tracer("telecraftor/updates"),
		out:     make(chan Applied, outputQueueCapacity),
		state:   State{ChannelPts: map[int64]int{}},
	}
}

// Init restores the persisted state or, if none exists, fetches the
// current one via updates.getState and persists it (spec.md §4.5,
// "Initialization").
func (e *Engine) Init(ctx context.Context) error {
	st, ok, err := e.storage.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load updates state")
	}
	if ok {
		if st.ChannelPts == nil {
			st.ChannelPts = map[int64]int{}
		}
		e.mu.Lock()
		e.state = st
		e.mu.Unlock()
		return nil
	}

	remote, err := e.source.GetState(ctx)
	if err != nil {
		return errors.Wrap(err, "getState")
	}
	fresh := State{Pts: remote.Pts, Qts: remote.Qts, Date: remote.Date, Seq: remote.Seq, ChannelPts: map[int64]int{}}
	e.mu.Lock()
	e.state = fresh
	e.mu.Unlock()
	return e.storage.Save(ctx, fresh)
}

// State returns a snapshot of the current persisted state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Output is the bounded queue of applied side-effects (spec.md §4.5,
// "Applied output"). The facade drains it; overflow drops the newest
// update rather than blocking the engine (spec.md §4.5, "overflow
// discards the newest update and logs a dropped-update event").
func (e *Engine) Output() <-chan Applied { return e.out }

// Apply feeds one updates-container reply to the engine (spec.md §4.5,
// "Applying an update container"). While a difference call is in flight
// for an unrelated gap, containers are queued and replayed afterward
// (spec.md §4.5, "difference recovery contract").
func (e *Engine) Apply(ctx context.Context, u tl.UpdatesClass) error {
	e.mu.Lock()
	if e.recovering {
		e.deferred = append(e.deferred, u)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return e.apply(ctx, u)
}

func (e *Engine) apply(ctx context.Context, u tl.UpdatesClass) error {
	switch v := u.(type) {
	case *tl.Updates:
		return e.applyContainer(ctx, 0, 0, false, v.Updates, v.Users, v.Chats)
	case *tl.UpdatesCombined:
		return e.applyContainer(ctx, v.Seq, v.Date, true, v.Updates, v.Users, v.Chats)
	case *tl.UpdateShortMessage:
		synthetic := &tl.UpdateNewMessage{MessageID: int64(v.ID), Pts: v.Pts, PtsCount: v.PtsCount}
		return e.applyContainer(ctx, 0, v.Date, false, []tl.UpdateClass{synthetic}, nil, nil)
	case tl.UpdatesTooLong, *tl.UpdatesTooLong:
		return e.recoverFromGap(ctx)
	default:
		return errors.Newf("updates: unknown updates variant %T", u)
	}
}

// applyContainer implements spec.md §4.5's four-branch seq rule. hasSeq is
// false for the plain Updates shape, which carries no seq field at all and
// is always treated as "seq irrelevant" (rule 1).
func (e *Engine) applyContainer(ctx context.Context, seq, date int, hasSeq bool, upds []tl.UpdateClass, users []tl.UserClass, chats []tl.ChatClass) error {
	e.mu.Lock()
	cur := e.state.Seq
	e.mu.Unlock()

	if hasSeq && seq != 0 {
		switch {
		case seq <= cur:
			return nil // rule 2: already applied
		case seq > cur+1:
			return e.recoverFromGap(ctx) // rule 4: gap
		}
	}

	applied, err := e.applyEach(ctx, upds)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if hasSeq && seq != 0 {
		e.state.Seq = seq
	}
	if date > e.state.Date {
		e.state.Date = date
	}
	snapshot := e.state.clone()
	e.mu.Unlock()

	if err := e.storage.Save(ctx, snapshot); err != nil {
		e.log.Warn("persist updates state failed", zap.Error(err))
	}
	e.publish(Applied{Updates: applied, Users: users, Chats: chats})
	return nil
}

// applyEach runs spec.md §4.5's "Per-update application" rule over one
// container's updates. The first global pts or qts gap stops processing
// the remainder of the container: the difference call that follows
// resynchronizes past whatever the rest of the batch would have
// contributed. A per-channel gap runs getChannelDifference for that
// channel only, and the remaining updates are still processed.
func (e *Engine) applyEach(ctx context.Context, upds []tl.UpdateClass) ([]tl.UpdateClass, error) {
	applied := make([]tl.UpdateClass, 0, len(upds))
	for _, u := range upds {
		if _, isPtsChanged := u.(*tl.UpdatePtsChanged); isPtsChanged {
			if err := e.recoverFromGap(ctx); err != nil {
				return applied, err
			}
			continue
		}

		if v, isChannelTooLong := u.(*tl.UpdateChannelTooLong); isChannelTooLong {
			if err := e.recoverChannelGap(ctx, v.ChannelID); err != nil {
				return applied, err
			}
			continue
		}

		if pts, ptsCount, ok := tl.IsPtsUpdate(u); ok {
			wasApplied, gapped := e.applyPts(pts, ptsCount)
			if gapped {
				if err := e.recoverFromGap(ctx); err != nil {
					return applied, err
				}
				break
			}
			if wasApplied {
				applied = append(applied, u)
			}
			continue
		}

		if qts, ok := tl.IsQtsUpdate(u); ok {
			wasApplied, gapped := e.applyQts(qts)
			if gapped {
				if err := e.recoverFromGap(ctx); err != nil {
					return applied, err
				}
				break
			}
			if wasApplied {
				applied = append(applied, u)
			}
			continue
		}

		if channelID, pts, ptsCount, ok := tl.IsChannelPtsUpdate(u); ok {
			wasApplied, gapped := e.applyChannelPts(channelID, pts, ptsCount)
			if gapped {
				if err := e.recoverChannelGap(ctx, channelID); err != nil {
					return applied, err
				}
				continue
			}
			if wasApplied {
				applied = append(applied, u)
			}
			continue
		}

		applied = append(applied, u)
	}
	return applied, nil
}

// applyCounter implements the declared/local comparison spec.md §4.5
// describes identically for pts, qts, and per-channel pts: "declared ==
// local: apply. declared < local: drop. declared > local: gap".
func applyCounter(local, value, count int) (newLocal int, applied, gapped bool) {
	declared := value - count
	switch {
	case declared == local:
		return value, true, false
	case declared < local:
		return local, false, false
	default:
		return local, false, true
	}
}

func (e *Engine) applyPts(pts, ptsCount int) (applied, gapped bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	newLocal, applied, gapped := applyCounter(e.state.Pts, pts, ptsCount)
	e.state.Pts = newLocal
	return applied, gapped
}

func (e *Engine) applyQts(qts int) (applied, gapped bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	newLocal, applied, gapped := applyCounter(e.state.Qts, qts, 1)
	e.state.Qts = newLocal
	return applied, gapped
}

func (e *Engine) applyChannelPts(channelID int64, pts, ptsCount int) (applied, gapped bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	local, known := e.state.ChannelPts[channelID]
	if !known {
		// spec.md §4.5: "Missing channel entry is initialized to pts - pts_count".
		local = pts - ptsCount
		e.state.ChannelPts[channelID] = local
	}
	newLocal, applied, gapped := applyCounter(local, pts, ptsCount)
	e.state.ChannelPts[channelID] = newLocal
	return applied, gapped
}

// recoverFromGap runs updates.getDifference to close a detected global
// gap, integrates the result, and replays any containers that arrived
// while the call was in flight (spec.md §4.5, "difference recovery
// contract").
func (e *Engine) recoverFromGap(ctx context.Context) error {
	e.mu.Lock()
	if e.recovering {
		e.mu.Unlock()
		return nil
	}
	e.recovering = true
	req := tl.GetDifferenceRequest{Pts: e.state.Pts, Qts: e.state.Qts, Date: e.state.Date}
	e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "updates.getDifference")
	defer span.End()

	abort := func(err error) error {
		e.mu.Lock()
		e.recovering = false
		e.mu.Unlock()
		return err
	}

	diff, err := e.source.GetDifference(ctx, req)
	if err != nil {
		return abort(errors.Wrap(err, "getDifference"))
	}

	result, newState, err := e.integrateDifference(ctx, diff)
	if err != nil {
		return abort(err)
	}

	e.mu.Lock()
	newState.ChannelPts = e.state.ChannelPts
	e.state = newState
	e.recovering = false
	deferred := e.deferred
	e.deferred = nil
	snapshot := e.state.clone()
	e.mu.Unlock()

	if err := e.storage.Save(ctx, snapshot); err != nil {
		e.log.Warn("persist updates state failed", zap.Error(err))
	}
	e.publish(result)

	for _, d := range deferred {
		if err := e.apply(ctx, d); err != nil {
			e.log.Warn("reapply deferred container after recovery failed", zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) integrateDifference(ctx context.Context, diff tl.DifferenceClass) (Applied, State, error) {
	var acc Applied
	for {
		switch d := diff.(type) {
		case *tl.Difference:
			acc.NewMessages = append(acc.NewMessages, d.NewMessages...)
			acc.Updates = append(acc.Updates, d.OtherUpdates...)
			acc.Users = append(acc.Users, d.Users...)
			acc.Chats = append(acc.Chats, d.Chats...)
			return acc, State{Pts: d.State.Pts, Qts: d.State.Qts, Date: d.State.Date, Seq: d.State.Seq}, nil

		case *tl.DifferenceSlice:
			acc.NewMessages = append(acc.NewMessages, d.NewMessages...)
			acc.Updates = append(acc.Updates, d.OtherUpdates...)
			acc.Users = append(acc.Users, d.Users...)
			acc.Chats = append(acc.Chats, d.Chats...)
			next, err := e.source.GetDifference(ctx, tl.GetDifferenceRequest{
				Pts:  d.IntermediateState.Pts,
				Qts:  d.IntermediateState.Qts,
				Date: d.IntermediateState.Date,
			})
			if err != nil {
				return acc, State{}, errors.Wrap(err, "getDifference (paginated)")
			}
			diff = next
			continue

		case *tl.DifferenceEmpty:
			e.mu.Lock()
			st := e.state.clone()
			e.mu.Unlock()
			st.Date, st.Seq = d.Date, d.Seq
			return acc, st, nil

		case *tl.DifferenceTooLong:
			st, err := e.source.GetState(ctx)
			if err != nil {
				return acc, State{}, errors.Wrap(err, "getState after differenceTooLong")
			}
			acc.StateReset = true
			return acc, State{Pts: d.Pts, Qts: st.Qts, Date: st.Date, Seq: st.Seq, ChannelPts: map[int64]int{}}, nil

		default:
			return acc, State{}, errors.Newf("updates: unknown difference variant %T", diff)
		}
	}
}

// recoverChannelGap runs updates.getChannelDifference to close a detected
// per-channel gap, paginating until the server reports Final.
func (e *Engine) recoverChannelGap(ctx context.Context, channelID int64) error {
	inputChannel, err := e.hasher.ResolveChannel(ctx, channelID)
	if err != nil {
		return errors.Wrap(err, "resolve channel for getChannelDifference")
	}

	e.mu.Lock()
	pts := e.state.ChannelPts[channelID]
	e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "updates.getChannelDifference")
	defer span.End()

	req := tl.GetChannelDifferenceRequest{Channel: inputChannel, Pts: pts, Limit: channelDifferenceLimit}
	for {
		diff, err := e.source.GetChannelDifference(ctx, req)
		if err != nil {
			return errors.Wrap(err, "getChannelDifference")
		}

		switch d := diff.(type) {
		case *tl.ChannelDifference:
			e.mu.Lock()
			e.state.ChannelPts[channelID] = d.Pts
			snapshot := e.state.clone()
			e.mu.Unlock()
			if err := e.storage.Save(ctx, snapshot); err != nil {
				e.log.Warn("persist updates state failed", zap.Error(err))
			}
			e.publish(Applied{NewMessages: d.NewMessages, Updates: d.OtherUpdates, Users: d.Users, Chats: d.Chats})
			if d.Final {
				return nil
			}
			req.Pts = d.Pts
			continue

		case *tl.ChannelDifferenceEmpty:
			e.mu.Lock()
			e.state.ChannelPts[channelID] = d.Pts
			e.mu.Unlock()
			return nil

		case *tl.ChannelDifferenceTooLong:
			e.mu.Lock()
			e.state.ChannelPts[channelID] = d.Pts
			e.mu.Unlock()
			e.publish(Applied{ChannelReset: true, ChannelID: channelID})
			return nil

		default:
			return errors.Newf("updates: unknown channel difference variant %T", diff)
		}
	}
}

func (e *Engine) publish(a Applied) {
	select {
	case e.out <- a:
	default:
		e.log.Warn("dropped update: output queue full")
	}
}
