// Package telegram implements the L5 client facade (spec.md §4.7): it owns
// one RPC sender, one updates engine, one entity cache, and one session
// record, and exposes connect/invoke/recv_update/close plus the auth flow.
package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/entity"
	"github.com/meniwap/telecraftor-core/mtcrypto"
	"github.com/meniwap/telecraftor-core/mtproto"
	"github.com/meniwap/telecraftor-core/rpc"
	"github.com/meniwap/telecraftor-core/session"
	"github.com/meniwap/telecraftor-core/telegram/dcs"
	"github.com/meniwap/telecraftor-core/tl"
	"github.com/meniwap/telecraftor-core/transport"
	"github.com/meniwap/telecraftor-core/transport/codec"
	"github.com/meniwap/telecraftor-core/updates"
)

// UpdatesDecoder turns the still-TL-encoded bytes rpc.Sender hands the
// facade for an update container into a typed tl.UpdatesClass. The real TL
// schema that performs this decode is an external collaborator out of
// scope here (spec.md §1).
type UpdatesDecoder interface {
	DecodeUpdates(body []byte) (tl.UpdatesClass, error)
}

// Source is the RPC seam the auth flow and connection-registration steps
// call through, mirroring updates.Source's "already-decoded domain value"
// shape (spec.md §4.7).
type Source interface {
	updates.Source

	InitConnection(ctx context.Context) error
	SendCode(ctx context.Context, phone string) (tl.SentCode, error)
	SignIn(ctx context.Context, phone, phoneCodeHash, code string) (*tl.Authorization, *tl.SignUpRequired, error)
	SignUp(ctx context.Context, phone, phoneCodeHash, firstName, lastName string) (tl.Authorization, error)
	GetPassword(ctx context.Context) (tl.Password, error)
	CheckPassword(ctx context.Context, req tl.InputCheckPasswordSRP) (tl.Authorization, error)
	LogOut(ctx context.Context) error
	ResolveUsername(ctx context.Context, username string) (tl.PeerRef, []tl.UserClass, []tl.ChatClass, error)
	ResolvePhone(ctx context.Context, phone string) (tl.PeerRef, []tl.UserClass, []tl.ChatClass, error)
}

// Options configures a Client (spec.md §4.7, §6).
type Options struct {
	Lane          session.Lane
	AllowProd     bool
	DCID          int
	DCTable       dcs.Table
	Framing       dcs.Framing
	RSAKeys       []mtcrypto.PublicKey
	SessionStore  session.FileStorage
	UpdatesStore  updates.FileStorage
	EntityStore   entity.FileStorage
	PersistEvery  time.Duration
	Log           *zap.Logger
}

// Client is the L5 facade: one connection, one sender, one updates
// engine, one entity cache, one session per (lane, dc) (spec.md §4.7).
type Client struct {
	opts   Options
	log    *zap.Logger
	source Source
	decode UpdatesDecoder

	mu      sync.Mutex
	conn    transport.Conn
	mconn   *mtproto.Conn
	sender  *rpc.Sender
	engine  *updates.Engine
	cache   *entity.Cache
	session session.Data

	registered bool // initConnection already sent (spec.md §4.7, "connect")

	out chan updates.Applied

	eg     *errgroup.Group
	cancel context.CancelFunc

	closeOnce sync.Once
}

// New builds a Client. source and decode are supplied by the caller
// because they depend on the real TL schema (out of scope here); source
// must also be rebuilt against mconn/sender after Connect if it wraps
// rpc.Sender.Invoke directly — callers typically close over a *Client.
func New(opts Options, source Source, decode UpdatesDecoder) *Client {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DCTable == nil {
		opts.DCTable = dcs.Default
	}
	if opts.Framing == "" {
		opts.Framing = dcs.FramingIntermediate
	}
	if opts.PersistEvery == 0 {
		opts.PersistEvery = 2 * time.Second
	}
	return &Client{
		opts:   opts,
		log:    log,
		source: source,
		decode: decode,
		cache:  entity.New(source),
		out:    make(chan updates.Applied, 256),
	}
}

// Connect establishes the connection: reuses a saved session when one
// exists and matches the requested lane, otherwise runs the L1 handshake
// against the configured endpoint (spec.md §4.7, "connect").
func (c *Client) Connect(ctx context.Context) error {
	if err := dcs.CheckLane(c.opts.Lane, c.opts.AllowProd); err != nil {
		return err
	}

	data, err := c.opts.SessionStore.Load(c.opts.Lane)
	var conn transport.Conn
	switch {
	case err == nil:
		conn, err = c.dialExisting(ctx, data)
		if err != nil {
			return err
		}
	case errors.Is(err, session.ErrNotFound):
		ep, ok := c.opts.DCTable.Lookup(c.opts.Lane, c.opts.DCID)
		if !ok {
			return errors.Newf("telegram: no endpoint for lane %q dc %d", c.opts.Lane, c.opts.DCID)
		}
		conn, data, err = dcs.Handshake(ctx, ep, c.opts.Lane, c.opts.DCID, c.opts.Framing, c.opts.RSAKeys, c.log)
		if err != nil {
			return err
		}
		if err := c.opts.SessionStore.Save(data); err != nil {
			c.log.Warn("persist session after handshake failed", zap.Error(err))
		}
	default:
		return err
	}

	c.mu.Lock()
	c.session = data
	c.conn = conn
	c.mu.Unlock()

	return c.attach(ctx, conn, data)
}

// dialExisting reopens the TCP socket for a previously negotiated session,
// skipping the L1 key exchange entirely: the saved auth_key/server_salt
// are reused as-is, matching spec.md §4.7's "connect ... reuses a saved
// session" (the handshake is only ever run once per auth_key, in
// dcs.Handshake, on first connect).
func (c *Client) dialExisting(ctx context.Context, data session.Data) (transport.Conn, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	raw, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(data.Host, strconv.Itoa(data.Port)))
	if err != nil {
		return nil, errors.Wrap(err, "dial datacenter")
	}
	return transport.New(raw, codecForFraming(dcs.Framing(data.Framing))), nil
}

func codecForFraming(f dcs.Framing) codec.Codec {
	if f == dcs.FramingAbridged {
		return codec.Abridged{}
	}
	return codec.Intermediate{}
}

func (c *Client) attach(ctx context.Context, conn transport.Conn, data session.Data) error {
	mtSession := mtproto.Session{Key: data.AuthKey, Salt: data.ServerSalt, SessionID: newSessionID()}

	sender := rpc.NewSender(updatesBridge{client: c}, c.log)
	mconn := mtproto.NewConn(conn, mtSession, sender, c.log)
	sender.SetConn(mconn)
	sender.SetFeeder(c.cache)

	c.mu.Lock()
	c.mconn = mconn
	c.sender = sender
	c.mu.Unlock()

	if err := c.opts.EntityStore.Load(ctx, c.cache); err != nil {
		c.log.Warn("load entity cache failed", zap.Error(err))
	}

	engine := updates.New(c.opts.UpdatesStore, c.source, c.cache, c.log)
	if err := engine.Init(ctx); err != nil {
		return errors.Wrap(err, "init updates engine")
	}
	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()

	if !c.registered {
		if err := c.source.InitConnection(ctx); err != nil {
			return errors.Wrap(err, "initConnection")
		}
		c.registered = true
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	eg, egCtx := errgroup.WithContext(runCtx)
	c.eg = eg

	eg.Go(func() error { return c.receiveLoop(egCtx) })
	eg.Go(func() error { return c.pingLoop(egCtx) })
	eg.Go(func() error { return c.persistLoop(egCtx) })
	eg.Go(func() error { return c.updatesConsumer(egCtx, engine) })

	return nil
}

// receiveLoop reads one message per mtproto.Conn.Recv call; a transport
// failure is handed to reconnect rather than killing the whole client, per
// spec.md §5's reconnect policy (redial, renegotiate session_id, resume
// from the persisted updates state).
func (c *Client) receiveLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.mu.Lock()
		mconn := c.mconn
		c.mu.Unlock()
		if err := mconn.Recv(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("receive loop error, reconnecting", zap.Error(err))
			if rerr := c.reconnect(ctx); rerr != nil {
				return errors.Wrap(rerr, "reconnect")
			}
		}
	}
}

// reconnect redials the last known (host, port), reusing the saved
// auth_key/server_salt, with exponential backoff (spec.md §5,
// "Reconnect policy": 1s initial, 30s cap, ±20% jitter). A new session_id
// is picked per attempt; the updates engine resumes from its persisted
// pts/qts/seq/date, which naturally drives a getDifference catch-up on
// the first gap it observes post-reconnect.
func (c *Client) reconnect(ctx context.Context) error {
	policy := backoff.WithContext(reconnectBackoff(), ctx)
	return backoff.Retry(func() error {
		c.mu.Lock()
		data := c.session
		c.mu.Unlock()

		conn, err := c.dialExisting(ctx, data)
		if err != nil {
			return err
		}

		mtSession := mtproto.Session{Key: data.AuthKey, Salt: data.ServerSalt, SessionID: newSessionID()}
		sender := rpc.NewSender(updatesBridge{client: c}, c.log)
		mconn := mtproto.NewConn(conn, mtSession, sender, c.log)
		sender.SetConn(mconn)
		sender.SetFeeder(c.cache)

		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.conn = conn
		c.mconn = mconn
		c.sender = sender
		c.mu.Unlock()
		return nil
	}, policy)
}

func (c *Client) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.sender.FlushAcks(ctx); err != nil {
				c.log.Warn("flush acks failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) persistLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.PersistEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.persistBestEffort(context.Background())
			return ctx.Err()
		case <-ticker.C:
			c.persistBestEffort(ctx)
		}
	}
}

func (c *Client) persistBestEffort(ctx context.Context) {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine != nil {
		if err := c.opts.UpdatesStore.Save(ctx, engine.State()); err != nil {
			c.log.Warn("persist updates state failed", zap.Error(err))
		}
	}
	if err := c.opts.EntityStore.Save(ctx, c.cache); err != nil {
		c.log.Warn("persist entity cache failed", zap.Error(err))
	}
}

func (c *Client) updatesConsumer(ctx context.Context, engine *updates.Engine) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case applied := <-engine.Output():
			select {
			case c.out <- applied:
			default:
				c.log.Warn("dropped applied update: facade queue full")
			}
		}
	}
}

// Invoke sends req and decodes the reply into resp; the connection-layer
// registration (initConnection) has already run once by the time Connect
// returns, so every call here is a thin pass-through to the sender
// (spec.md §4.7, "invoke"). A rpc.MigrateError is handled transparently:
// the facade tears down the connection, rewrites the session for the new
// DC, re-runs the handshake, and retries the call exactly once (spec.md
// §4.4 step 3 / §7, "Migrate").
func (c *Client) Invoke(ctx context.Context, req bin.Encoder, resp bin.Decoder) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	if sender == nil {
		return errors.New("telegram: not connected")
	}

	err := sender.Invoke(ctx, req, resp)
	var migrate *rpc.MigrateError
	if !errors.As(err, &migrate) {
		return err
	}

	if err := c.migrateTo(ctx, migrate.DC); err != nil {
		return errors.Wrap(err, "migrate to new dc")
	}

	c.mu.Lock()
	sender = c.sender
	c.mu.Unlock()
	return sender.Invoke(ctx, req, resp)
}

// migrateTo tears down the current connection and runs a fresh handshake
// against dcID, rewriting and persisting the session record (spec.md §7's
// Migrate scenario: "close the connection, rewrite the session with
// dc_id=4, run a fresh handshake ... End state: session file reflects
// DC 4").
func (c *Client) migrateTo(ctx context.Context, dcID int) error {
	ep, ok := c.opts.DCTable.Lookup(c.opts.Lane, dcID)
	if !ok {
		return errors.Newf("telegram: no endpoint for lane %q dc %d", c.opts.Lane, dcID)
	}

	c.mu.Lock()
	oldConn := c.conn
	c.mu.Unlock()
	if oldConn != nil {
		_ = oldConn.Close()
	}

	conn, data, err := dcs.Handshake(ctx, ep, c.opts.Lane, dcID, c.opts.Framing, c.opts.RSAKeys, c.log)
	if err != nil {
		return err
	}
	if err := c.opts.SessionStore.Save(data); err != nil {
		c.log.Warn("persist session after migrate failed", zap.Error(err))
	}

	mtSession := mtproto.Session{Key: data.AuthKey, Salt: data.ServerSalt, SessionID: newSessionID()}
	sender := rpc.NewSender(updatesBridge{client: c}, c.log)
	mconn := mtproto.NewConn(conn, mtSession, sender, c.log)
	sender.SetConn(mconn)
	sender.SetFeeder(c.cache)

	c.mu.Lock()
	c.session = data
	c.conn = conn
	c.mconn = mconn
	c.sender = sender
	c.mu.Unlock()

	if err := c.source.InitConnection(ctx); err != nil {
		return err
	}
	c.registered = true
	return nil
}

// RecvUpdate blocks until the next applied update is available or ctx is
// done (spec.md §4.7, "recv_update").
func (c *Client) RecvUpdate(ctx context.Context) (updates.Applied, error) {
	select {
	case a := <-c.out:
		return a, nil
	case <-ctx.Done():
		return updates.Applied{}, ctx.Err()
	}
}

// Close drains best-effort persistence, cancels auxiliary tasks, and
// closes the socket (spec.md §4.7, "close"). The task group's error and
// the socket close error are aggregated with multierr; persistence
// failures are logged, not returned.
func (c *Client) Close() error {
	var combined error
	c.closeOnce.Do(func() {
		c.persistBestEffort(context.Background())

		if c.cancel != nil {
			c.cancel()
		}
		if c.eg != nil {
			if err := c.eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				combined = multierr.Append(combined, err)
			}
		}
		if c.sender != nil {
			c.sender.Close()
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			combined = multierr.Append(combined, conn.Close())
		}
	})
	return combined
}

// LogOut invokes auth.logOut and invalidates the in-memory session's auth
// key so a subsequent reconnect will not try to reuse it (SPEC_FULL.md
// §4.7, supplemented "logout" feature). The session file itself is left
// on disk per spec.md §7 ("the session file is assumed valid"); the
// caller is expected to discard it.
func (c *Client) LogOut(ctx context.Context) error {
	if err := c.source.LogOut(ctx); err != nil {
		return errors.Wrap(err, "auth.logOut")
	}
	c.mu.Lock()
	c.session.AuthKey = mtcrypto.AuthKey{}
	c.mu.Unlock()
	return nil
}

type updatesBridge struct {
	client *Client
}

func (b updatesBridge) HandleUpdates(ctx context.Context, body []byte) error {
	u, err := b.client.decode.DecodeUpdates(body)
	if err != nil {
		return errors.Wrap(err, "decode updates body")
	}
	b.client.mu.Lock()
	engine := b.client.engine
	b.client.mu.Unlock()
	if engine == nil {
		return nil
	}
	return engine.Apply(ctx, u)
}

// newSessionID picks a fresh random session_id for this process's
// lifetime, per spec.md §3 ("session_id is regenerated per process,
// never persisted").
func newSessionID() int64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// reconnectBackoff builds the exponential backoff policy spec.md §5's
// "Reconnect policy" describes: 1s initial, 30s cap, ±20% jitter.
func reconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	return b
}
