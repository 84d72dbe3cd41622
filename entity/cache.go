// Package entity implements the peer resolver / entity cache (spec.md
// §4.6): it indexes user/chat access hashes and usernames/phones as they
// flow past in RPC results and update containers, and resolves caller
// references to the InputPeer/InputUser/InputChannel values RPCs need.
package entity

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/tl"
)

// PeerNotFoundError is returned by Resolve when a reference cannot be
// resolved even after a priming RPC (spec.md §4.6, "Fails with
// PeerNotFound if still absent").
type PeerNotFoundError struct {
	Ref tl.InputRef
}

func (e *PeerNotFoundError) Error() string { return "entity: peer not found" }

// UnknownAccessHashError is returned by InputPeer/InputUser/InputChannel
// when the id is known but its access hash isn't (spec.md §4.6,
// "require the access-hash be known").
type UnknownAccessHashError struct {
	Kind tl.PeerKind
	ID   int64
}

func (e *UnknownAccessHashError) Error() string { return "entity: unknown access hash" }

type usernameEntry struct {
	kind tl.PeerKind
	id   int64
}

// Cache is the in-memory entity cache spec.md §3 defines under "Entity
// cache". Zero value is usable; Feed/Resolve are safe for concurrent use.
type Cache struct {
	mu sync.RWMutex

	userAccessHash    map[int64]int64
	channelAccessHash map[int64]int64
	usernameToPeer    map[string]usernameEntry
	phoneToUser       map[string]int64

	// known tracks ids seen at all (even without an access hash), so
	// input_peer for a basic-group chat (which never carries one) can
	// still succeed.
	knownIDs map[int64]struct{}

	// chatMigratedTo records messageActionChatMigrateTo sightings
	// (SPEC_FULL.md §3, supplemented "basic-group migration bookkeeping").
	// It is never consulted by Resolve/InputPeer; the caller decides
	// whether to act on it.
	chatMigratedTo map[int64]int64

	resolver Resolver
}

// Resolver issues the priming RPCs Resolve falls back to when a reference
// isn't cached yet (spec.md §4.6, "calls the resolver RPCs").
type Resolver interface {
	ResolveUsername(ctx context.Context, username string) (tl.PeerRef, []tl.UserClass, []tl.ChatClass, error)
	ResolvePhone(ctx context.Context, phone string) (tl.PeerRef, []tl.UserClass, []tl.ChatClass, error)
}

// New builds an empty Cache. resolver may be nil if the caller never uses
// string-form references.
func New(resolver Resolver) *Cache {
	return &Cache{
		userAccessHash:    map[int64]int64{},
		channelAccessHash: map[int64]int64{},
		usernameToPeer:    map[string]usernameEntry{},
		phoneToUser:       map[string]int64{},
		knownIDs:          map[int64]struct{}{},
		chatMigratedTo:    map[int64]int64{},
		resolver:          resolver,
	}
}

// NoteMigration records that the basic-group chat chatID was migrated to
// the supergroup/channel channelID (spec.md §9's open migration question;
// SPEC_FULL.md §3 resolves it as record-only). It never rewrites
// usernameToPeer, any access-hash map, or knownIDs — callers that want
// chatID's future references to resolve as channelID must do that
// themselves via IngestChats on the new channel.
func (c *Cache) NoteMigration(chatID, channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatMigratedTo[chatID] = channelID
}

// MigratedTo returns the channel id a prior NoteMigration recorded for
// chatID, if any.
func (c *Cache) MigratedTo(chatID int64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.chatMigratedTo[chatID]
	return id, ok
}

// IngestUsers walks users, recording access hashes (when present,
// non-zero, and not a Min ghost object) and indexing usernames/phones
// (spec.md §4.6, "ingest_users").
func (c *Cache) IngestUsers(users []tl.UserClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		c.ingestUserLocked(u)
	}
}

// IngestChats walks chats, recording access hashes the same way for
// channels (basic groups never carry one) (spec.md §4.6, "ingest_chats").
func (c *Cache) IngestChats(chats []tl.ChatClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chats {
		c.ingestChatLocked(ch)
	}
}

func (c *Cache) ingestUserLocked(u tl.UserClass) {
	full, ok := u.(*tl.User)
	if !ok {
		return
	}
	c.knownIDs[full.ID] = struct{}{}

	// SPEC_FULL.md §4.6: a Min (ghost) object's access hash is not
	// authoritative and must never overwrite a previously cached one.
	if !full.Min {
		if hash, has := full.GetAccessHash(); has && hash != 0 {
			c.userAccessHash[full.ID] = hash
		}
	}

	names := full.Usernames
	if full.Username != "" {
		names = append(names, full.Username)
	}
	for _, name := range names {
		c.usernameToPeer[tl.NormalizeUsername(name)] = usernameEntry{kind: tl.PeerUser, id: full.ID}
	}
	if full.Phone != "" {
		c.phoneToUser[tl.NormalizePhone(full.Phone)] = full.ID
	}
}

func (c *Cache) ingestChatLocked(ch tl.ChatClass) {
	switch v := ch.(type) {
	case *tl.Chat:
		c.knownIDs[v.ID] = struct{}{}
	case *tl.ChatForbidden:
		c.knownIDs[v.ID] = struct{}{}
	case *tl.Channel:
		c.knownIDs[v.ID] = struct{}{}
		if !v.Min {
			if hash, has := v.GetAccessHash(); has && hash != 0 {
				c.channelAccessHash[v.ID] = hash
			}
		}
		names := v.Usernames
		if v.Username != "" {
			names = append(names, v.Username)
		}
		for _, name := range names {
			c.usernameToPeer[tl.NormalizeUsername(name)] = usernameEntry{kind: tl.PeerChannel, id: v.ID}
		}
	case *tl.ChannelForbidden:
		c.knownIDs[v.ID] = struct{}{}
		c.channelAccessHash[v.ID] = v.AccessHash
	}
}

// Resolve normalizes ref and looks it up locally; on a miss it calls the
// resolver RPC, ingests the returned entities, and retries once (spec.md
// §4.6, "resolve(input_ref) → Peer").
func (c *Cache) Resolve(ctx context.Context, ref tl.InputRef) (tl.PeerRef, error) {
	if ref.Resolved != nil {
		return *ref.Resolved, nil
	}

	if peer, ok := c.lookup(ref); ok {
		return peer, nil
	}

	if c.resolver == nil {
		return tl.PeerRef{}, &PeerNotFoundError{Ref: ref}
	}

	var (
		peer  tl.PeerRef
		users []tl.UserClass
		chats []tl.ChatClass
		err   error
	)
	switch {
	case ref.Username != "":
		peer, users, chats, err = c.resolver.ResolveUsername(ctx, ref.Username)
	case ref.Phone != "":
		peer, users, chats, err = c.resolver.ResolvePhone(ctx, ref.Phone)
	default:
		return tl.PeerRef{}, &PeerNotFoundError{Ref: ref}
	}
	if err != nil {
		return tl.PeerRef{}, errors.Wrap(err, "resolve peer reference")
	}

	c.IngestUsers(users)
	c.IngestChats(chats)

	if found, ok := c.lookup(ref); ok {
		return found, nil
	}
	if peer != (tl.PeerRef{}) {
		return peer, nil
	}
	return tl.PeerRef{}, &PeerNotFoundError{Ref: ref}
}

func (c *Cache) lookup(ref tl.InputRef) (tl.PeerRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ref.Username != "" {
		if e, ok := c.usernameToPeer[ref.Username]; ok {
			return tl.PeerRef{Kind: e.kind, ID: e.id}, true
		}
	}
	if ref.Phone != "" {
		if id, ok := c.phoneToUser[ref.Phone]; ok {
			return tl.PeerRef{Kind: tl.PeerUser, ID: id}, true
		}
	}
	return tl.PeerRef{}, false
}

// InputPeer produces the InputPeer RPCs require (spec.md §4.6,
// "input_peer(peer) → InputPeer"). A basic-group chat never needs an
// access hash, matching spec.md §3's invariant.
func (c *Cache) InputPeer(peer tl.PeerRef) (tl.InputPeer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch peer.Kind {
	case tl.PeerChat:
		if _, known := c.knownIDs[peer.ID]; !known {
			return tl.InputPeer{}, &UnknownAccessHashError{Kind: peer.Kind, ID: peer.ID}
		}
		return tl.InputPeer{Kind: tl.PeerChat, ID: peer.ID}, nil
	case tl.PeerUser:
		hash, ok := c.userAccessHash[peer.ID]
		if !ok {
			return tl.InputPeer{}, &UnknownAccessHashError{Kind: peer.Kind, ID: peer.ID}
		}
		return tl.InputPeer{Kind: tl.PeerUser, ID: peer.ID, AccessHash: hash}, nil
	case tl.PeerChannel:
		hash, ok := c.channelAccessHash[peer.ID]
		if !ok {
			return tl.InputPeer{}, &UnknownAccessHashError{Kind: peer.Kind, ID: peer.ID}
		}
		return tl.InputPeer{Kind: tl.PeerChannel, ID: peer.ID, AccessHash: hash}, nil
	default:
		return tl.InputPeer{}, errors.Newf("entity: unknown peer kind %v", peer.Kind)
	}
}

// InputUser produces the InputUser a user-specific RPC requires (spec.md
// §4.6, "input_user(user_id) → InputUser").
func (c *Cache) InputUser(userID int64) (tl.InputUser, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.userAccessHash[userID]
	if !ok {
		return tl.InputUser{}, &UnknownAccessHashError{Kind: tl.PeerUser, ID: userID}
	}
	return tl.InputUser{ID: userID, AccessHash: hash}, nil
}

// InputChannel produces the InputChannel a channel-specific RPC requires
// (spec.md §4.6, "input_channel(channel_id) → InputChannel").
func (c *Cache) InputChannel(channelID int64) (tl.InputChannel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.channelAccessHash[channelID]
	if !ok {
		return tl.InputChannel{}, &UnknownAccessHashError{Kind: tl.PeerChannel, ID: channelID}
	}
	return tl.InputChannel{ID: channelID, AccessHash: hash}, nil
}

// ResolveChannel satisfies updates.AccessHasher so the updates engine can
// resolve a bare channel id to an InputChannel for getChannelDifference.
func (c *Cache) ResolveChannel(_ context.Context, channelID int64) (tl.InputChannel, error) {
	return c.InputChannel(channelID)
}

// Feed satisfies rpc.EntityFeeder, letting the RPC sender push every
// rpc_result's users/chats straight into the cache.
func (c *Cache) Feed(users []tl.UserClass, chats []tl.ChatClass) {
	c.IngestUsers(users)
	c.IngestChats(chats)
}
