package session_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/mtcrypto"
	"github.com/meniwap/telecraftor-core/session"
)

func testData(lane session.Lane) session.Data {
	var keyValue [256]byte
	for i := range keyValue {
		keyValue[i] = byte(i)
	}
	return session.Data{
		Lane:       lane,
		DCID:       2,
		Host:       "149.154.167.50",
		Port:       443,
		Framing:    "intermediate",
		AuthKey:    mtcrypto.NewAuthKey(keyValue),
		ServerSalt: 123456789,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := session.FileStorage{Path: path}

	in := testData(session.LaneTest)
	require.NoError(t, store.Save(in))

	out, err := store.Load(session.LaneTest)
	require.NoError(t, err)
	require.Equal(t, in.DCID, out.DCID)
	require.Equal(t, in.Host, out.Host)
	require.Equal(t, in.Port, out.Port)
	require.Equal(t, in.Framing, out.Framing)
	require.Equal(t, in.AuthKey.Value, out.AuthKey.Value)
	require.Equal(t, in.AuthKey.ID, out.AuthKey.ID)
	require.Equal(t, in.ServerSalt, out.ServerSalt)
}

func TestLoadMissingFile(t *testing.T) {
	store := session.FileStorage{Path: filepath.Join(t.TempDir(), "missing.json")}
	_, err := store.Load(session.LaneTest)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestLoadLaneMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := session.FileStorage{Path: path}
	require.NoError(t, store.Save(testData(session.LaneProd)))

	_, err := store.Load(session.LaneTest)
	var mismatch *session.ErrLaneMismatch
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, session.LaneTest, mismatch.Want)
	require.Equal(t, session.LaneProd, mismatch.Got)
}
