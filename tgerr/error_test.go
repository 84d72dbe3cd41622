package tgerr_test

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"

	"github.com/meniwap/telecraftor-core/tgerr"
)

func TestError(t *testing.T) {
	t.Run("FLOOD_WAIT_0", func(t *testing.T) {
		require.Equal(t, "rpc error code 420: FLOOD_WAIT (0)", tgerr.New(420, "FLOOD_WAIT_0").Error())
	})
	t.Run("FLOOD_WAIT", func(t *testing.T) {
		require.Equal(t, "rpc error code 420: FLOOD_WAIT", tgerr.New(420, "FLOOD_WAIT").Error())
	})
}

func TestErrorParse(t *testing.T) {
	t.Run("FLOOD_WAIT", func(t *testing.T) {
		require.Equal(t, &tgerr.Error{
			Code:     420,
			Message:  "FLOOD_WAIT_359",
			Type:     "FLOOD_WAIT",
			Argument: 359,
		}, tgerr.New(420, "FLOOD_WAIT_359"))
	})
	t.Run("FLOOD_WAIT_0", func(t *testing.T) {
		require.Equal(t, &tgerr.Error{
			Code:     420,
			Message:  "FLOOD_WAIT_0",
			Type:     "FLOOD_WAIT",
			Argument: 0,
		}, tgerr.New(420, "FLOOD_WAIT_0"))
	})
	t.Run("Middle", func(t *testing.T) {
		require.Equal(t, &tgerr.Error{
			Code:     169,
			Message:  "GO_1337_METERS_AWAY",
			Type:     "GO_METERS_AWAY",
			Argument: 1337,
		}, tgerr.New(169, "GO_1337_METERS_AWAY"))
	})
}

func TestHelpers(t *testing.T) {
	err := func() error {
		return tgerr.New(169, "GO_1337_METERS_AWAY")
	}()
	t.Run("Type", func(t *testing.T) {
		require.True(t, tgerr.Is(err, "GO_METERS_AWAY"))
		require.True(t, tgerr.Is(err, "FOO", "GO_METERS_AWAY"))
		require.False(t, tgerr.Is(err, "NOPE"))
		t.Run("AsType", func(t *testing.T) {
			{
				rpcErr, ok := tgerr.AsType(err, "NOPE")
				require.False(t, ok)
				require.Nil(t, rpcErr)
			}
			{
				rpcErr, ok := tgerr.AsType(err, "GO_METERS_AWAY")
				require.True(t, ok)
				require.NotNil(t, rpcErr)
			}
		})
	})
	t.Run("Code", func(t *testing.T) {
		require.True(t, tgerr.IsCode(err, 169))
		require.True(t, tgerr.IsCode(err, 1, 169))
		require.False(t, tgerr.IsCode(err, 168))
	})
	t.Run("Wrapped", func(t *testing.T) {
		wrapped := errors.Wrap(err, "perform operation")
		require.True(t, tgerr.Is(wrapped, "GO_METERS_AWAY"))
	})
	t.Run("ErrorType", func(t *testing.T) {
		tests := []struct {
			name  string
			value error
		}{
			{"Nil", nil},
			{"WrongType", fmt.Errorf("not an rpc error")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				e := tt.value

				_, ok := tgerr.As(e)
				require.False(t, ok)

				_, ok = tgerr.AsType(e, "")
				require.False(t, ok)

				_, ok = tgerr.AsFloodWait(e)
				require.False(t, ok)

				require.False(t, tgerr.Is(e, ""))
				require.False(t, tgerr.IsCode(e, 0))
			})
		}
	})
}

func TestAsMigrate(t *testing.T) {
	dc, ok := tgerr.AsMigrate(tgerr.New(303, "PHONE_MIGRATE_4"))
	require.True(t, ok)
	require.Equal(t, 4, dc)

	_, ok = tgerr.AsMigrate(tgerr.New(420, "FLOOD_WAIT_5"))
	require.False(t, ok)
}

func TestAsFloodWait(t *testing.T) {
	wait, ok := tgerr.AsFloodWait(tgerr.New(420, "FLOOD_WAIT_359"))
	require.True(t, ok)
	require.Equal(t, 359, wait)
}
