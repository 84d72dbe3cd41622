package entity

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/internal/atomicfile"
	"github.com/meniwap/telecraftor-core/tl"
)

const currentVersion = 1

type fileRecord struct {
	Version           int                 `json:"version"`
	UserAccessHash    map[int64]int64     `json:"user_access_hash"`
	ChannelAccessHash map[int64]int64     `json:"channel_access_hash"`
	UsernameToPeer    map[string][2]int64 `json:"username_to_peer"` // [kind, id]
	PhoneToUser       map[string]int64    `json:"phone_to_user_id"`
	KnownChats        []int64             `json:"known_chats"`
	ChatMigratedTo    map[int64]int64     `json:"chat_migrated_to"`
}

// Snapshot captures the cache's contents for persistence.
func (c *Cache) Snapshot() fileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	usernames := make(map[string][2]int64, len(c.usernameToPeer))
	for name, e := range c.usernameToPeer {
		usernames[name] = [2]int64{int64(e.kind), e.id}
	}
	knownIDs := make([]int64, 0, len(c.knownIDs))
	for id := range c.knownIDs {
		knownIDs = append(knownIDs, id)
	}

	return fileRecord{
		Version:           currentVersion,
		UserAccessHash:    copyInt64Map(c.userAccessHash),
		ChannelAccessHash: copyInt64Map(c.channelAccessHash),
		UsernameToPeer:    usernames,
		PhoneToUser:       copyInt64Map(c.phoneToUser),
		KnownChats:        knownIDs,
		ChatMigratedTo:    copyInt64Map(c.chatMigratedTo),
	}
}

func copyInt64Map[K comparable](m map[K]int64) map[K]int64 {
	cp := make(map[K]int64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Restore replaces the cache's contents with a previously saved snapshot.
// An unrecognized version is treated as "nothing persisted" rather than an
// error (spec.md §4.6, "the cache silently resets to empty").
func (c *Cache) Restore(rec fileRecord) {
	if rec.Version != currentVersion {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userAccessHash = copyInt64Map(rec.UserAccessHash)
	c.channelAccessHash = copyInt64Map(rec.ChannelAccessHash)
	c.phoneToUser = copyInt64Map(rec.PhoneToUser)

	c.usernameToPeer = make(map[string]usernameEntry, len(rec.UsernameToPeer))
	for name, pair := range rec.UsernameToPeer {
		c.usernameToPeer[name] = usernameEntry{kind: tl.PeerKind(pair[0]), id: pair[1]}
	}

	c.knownIDs = make(map[int64]struct{}, len(rec.KnownChats))
	for _, id := range rec.KnownChats {
		c.knownIDs[id] = struct{}{}
	}

	c.chatMigratedTo = copyInt64Map(rec.ChatMigratedTo)
}

// FileStorage loads and saves a Cache snapshot atomically, sharing the
// same debounced-save policy the updates state uses (spec.md §4.6,
// "Persistence: same debounced-save policy as the updates state").
type FileStorage struct {
	Path string
}

// Load restores c from the file at Path. A missing file or unrecognized
// version is silently treated as "start empty".
func (s FileStorage) Load(_ context.Context, c *Cache) error {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read entity cache file")
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Malformed on-disk format after an upgrade: reset silently rather
		// than fail startup (spec.md §4.6).
		return nil
	}
	c.Restore(rec)
	return nil
}

// Save atomically writes c's snapshot to Path.
func (s FileStorage) Save(_ context.Context, c *Cache) error {
	raw, err := json.Marshal(c.Snapshot())
	if err != nil {
		return errors.Wrap(err, "encode entity cache file")
	}
	return atomicfile.Write(s.Path, raw, 0o600)
}
