// Package session persists the per-(account, network lane) session record
// spec.md §3 defines: the negotiated auth key, current salt, and chosen DC
// endpoint, tagged with a network lane so a sandbox session is never loaded
// under a production request or vice versa (SPEC_FULL.md §6).
package session

import (
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/internal/atomicfile"
	"github.com/meniwap/telecraftor-core/mtcrypto"
)

// Lane distinguishes the sandbox/test DC cluster from production
// (SPEC_FULL.md §6, "AllowProd gate").
type Lane string

const (
	LaneTest Lane = "test"
	LaneProd Lane = "prod"
)

const currentVersion = 1

// Data is the persisted session record (spec.md §3, "Session record").
// SessionID is deliberately excluded: it is regenerated per process
// lifetime and never written to disk.
type Data struct {
	Version     int
	Lane        Lane
	DCID        int
	Host        string
	Port        int
	Framing     string
	AuthKey     mtcrypto.AuthKey
	ServerSalt  int64
}

// ErrNotFound is returned when no session file exists at the given path.
var ErrNotFound = errors.New("session: not found")

// ErrLaneMismatch is returned when a loaded session's lane tag does not
// match the lane the caller requested (spec.md §4.7, "lane isolation").
type ErrLaneMismatch struct {
	Want, Got Lane
}

func (e *ErrLaneMismatch) Error() string {
	return "session: lane mismatch: want " + string(e.Want) + ", file is tagged " + string(e.Got)
}

// record is the on-disk JSON shape (spec.md §4.7, "Persisted session
// file"). AuthKey and ServerSalt are base64-encoded, matching the spec's
// explicit wire format rather than JSON's native byte-array verbosity.
type record struct {
	Version     int    `json:"version"`
	NetworkLane Lane   `json:"network_lane"`
	DCID        int    `json:"dc_id"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Framing     string `json:"framing"`
	AuthKey     string `json:"auth_key"`
	ServerSalt  string `json:"server_salt"`
}

// FileStorage loads and saves a single session file at Path, atomically.
type FileStorage struct {
	Path string
}

// Load reads the session file and validates its lane tag against want.
// Returns ErrNotFound if the file does not exist.
func (s FileStorage) Load(want Lane) (Data, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Data{}, ErrNotFound
		}
		return Data{}, errors.Wrap(err, "read session file")
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Data{}, errors.Wrap(err, "decode session file")
	}
	if rec.NetworkLane != want {
		return Data{}, &ErrLaneMismatch{Want: want, Got: rec.NetworkLane}
	}

	keyBytes, err := base64.StdEncoding.DecodeString(rec.AuthKey)
	if err != nil || len(keyBytes) != 256 {
		return Data{}, errors.New("session: malformed auth_key")
	}
	var keyValue [256]byte
	copy(keyValue[:], keyBytes)

	saltBytes, err := base64.StdEncoding.DecodeString(rec.ServerSalt)
	if err != nil || len(saltBytes) != 8 {
		return Data{}, errors.New("session: malformed server_salt")
	}
	salt := int64(0)
	for _, b := range saltBytes {
		salt = salt<<8 | int64(b)
	}

	return Data{
		Version:    rec.Version,
		Lane:       rec.NetworkLane,
		DCID:       rec.DCID,
		Host:       rec.Host,
		Port:       rec.Port,
		Framing:    rec.Framing,
		AuthKey:    mtcrypto.NewAuthKey(keyValue),
		ServerSalt: salt,
	}, nil
}

// Save atomically writes d to the session file (temp+fsync+rename, spec.md
// §4.7, "Writes must be atomic"), permissions restricted to the owner.
func (s FileStorage) Save(d Data) error {
	var saltBytes [8]byte
	salt := d.ServerSalt
	for i := 7; i >= 0; i-- {
		saltBytes[i] = byte(salt)
		salt >>= 8
	}

	rec := record{
		Version:     currentVersion,
		NetworkLane: d.Lane,
		DCID:        d.DCID,
		Host:        d.Host,
		Port:        d.Port,
		Framing:     d.Framing,
		AuthKey:     base64.StdEncoding.EncodeToString(d.AuthKey.Value[:]),
		ServerSalt:  base64.StdEncoding.EncodeToString(saltBytes[:]),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode session file")
	}
	return atomicfile.Write(s.Path, raw, 0o600)
}
