package dcs_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/session"
	"github.com/meniwap/telecraftor-core/telegram/dcs"
)

func TestDefaultTableLookup(t *testing.T) {
	ep, ok := dcs.Default.Lookup(session.LaneTest, 2)
	require.True(t, ok)
	require.NotEmpty(t, ep.Host)

	_, ok = dcs.Default.Lookup(session.LaneTest, 99)
	require.False(t, ok)
}

func TestCheckLaneTestAlwaysAllowed(t *testing.T) {
	require.NoError(t, dcs.CheckLane(session.LaneTest, false))
}

func TestCheckLaneProdRequiresBothFlagAndEnv(t *testing.T) {
	require.Error(t, dcs.CheckLane(session.LaneProd, false))

	t.Setenv("TELECRAFTOR_ALLOW_PROD", "")
	require.Error(t, dcs.CheckLane(session.LaneProd, true))

	t.Setenv("TELECRAFTOR_ALLOW_PROD", "1")
	require.NoError(t, dcs.CheckLane(session.LaneProd, true))

	_ = os.Unsetenv("TELECRAFTOR_ALLOW_PROD")
}
