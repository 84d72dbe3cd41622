package tl

// Internal constructor ids for the application-level shapes below. These
// are this module's own stand-in numbering (spec.md §1 puts the generated
// schema out of scope), distinct from the well-known service-message ids in
// service.go which do match MTProto's public schema.
const (
	IDUser             uint32 = 0x00010001
	IDUserEmpty        uint32 = 0x00010002
	IDChat             uint32 = 0x00010003
	IDChatForbidden    uint32 = 0x00010004
	IDChannel          uint32 = 0x00010005
	IDChannelForbidden uint32 = 0x00010006
)

// UserClass is any user-shaped entity the updates engine or entity cache
// can see in a `users` list.
type UserClass interface {
	GetID() int64
}

// User is a fully-known user.
type User struct {
	ID         int64
	AccessHash int64
	HasAccessHash bool
	Username   string
	Usernames  []string // multi-username accounts (spec.md §4.6)
	Phone      string
	// Min marks a partial "ghost" object whose access hash (if any) is not
	// authoritative and must not overwrite the cache (SPEC_FULL.md §4.6).
	Min bool
}

func (u *User) GetID() int64 { return u.ID }

// GetAccessHash mirrors the teacher's optional-field accessor convention
// (`user.GetAccessHash()`, seen in access_hash_feeder.go).
func (u *User) GetAccessHash() (int64, bool) { return u.AccessHash, u.HasAccessHash }

// UserEmpty is a user stub with no further information.
type UserEmpty struct{ ID int64 }

func (u *UserEmpty) GetID() int64 { return u.ID }

// ChatClass is any chat-shaped entity: basic group, channel, or a
// forbidden/deleted variant of either.
type ChatClass interface {
	GetID() int64
}

// Chat is a legacy basic group. Per spec.md §3, basic groups never carry an
// access hash.
type Chat struct {
	ID    int64
	Title string
}

func (c *Chat) GetID() int64 { return c.ID }

// ChatForbidden is a basic group the user can no longer see.
type ChatForbidden struct {
	ID    int64
	Title string
}

func (c *ChatForbidden) GetID() int64 { return c.ID }

// Channel is a supergroup/broadcast channel.
type Channel struct {
	ID            int64
	AccessHash    int64
	HasAccessHash bool
	Title         string
	Username      string
	Usernames     []string
	Min           bool
}

func (c *Channel) GetID() int64 { return c.ID }

// GetAccessHash mirrors the teacher's optional-field accessor convention.
func (c *Channel) GetAccessHash() (int64, bool) { return c.AccessHash, c.HasAccessHash }

// ChannelForbidden is a channel the user can no longer see; unlike Channel,
// its access hash is always authoritative (it's present unconditionally).
type ChannelForbidden struct {
	ID         int64
	AccessHash int64
	Title      string
}

func (c *ChannelForbidden) GetID() int64 { return c.ID }
