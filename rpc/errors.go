// Package rpc implements the RPC sender (spec.md §4.4, L3): the pending-map,
// ack buffer, and receive-loop dispatch sitting on top of mtproto.Conn.
package rpc

import "strconv"

// TimeoutError is returned by Invoke when its deadline elapses before a
// reply arrives.
type TimeoutError struct {
	MsgID int64
}

func (e *TimeoutError) Error() string {
	return "rpc: timed out waiting for reply to msg_id " + strconv.FormatInt(e.MsgID, 10)
}

// ConnectionClosedError is returned by Invoke (and delivered to every still
// pending call) once the sender has been torn down.
type ConnectionClosedError struct{}

func (e *ConnectionClosedError) Error() string { return "rpc: connection closed" }

// MigrateError is returned by Invoke when the server's rpc_error carried one
// of PHONE_MIGRATE_X / USER_MIGRATE_X / NETWORK_MIGRATE_X (spec.md §4.4
// step 3), so the facade can reconnect to the right DC and retry.
type MigrateError struct {
	DC int
}

func (e *MigrateError) Error() string {
	return "rpc: migrate to DC " + strconv.Itoa(e.DC)
}
