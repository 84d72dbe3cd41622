// Package tgerr classifies RPC errors the server returns inside
// rpc_result.rpc_error (spec.md §7, "RPC errors from the server").
package tgerr

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// Error is a classified RPC error. Message is the raw string the server
// sent (e.g. "FLOOD_WAIT_359"); Type is the constant part ("FLOOD_WAIT") and
// Argument is the first purely numeric underscore-delimited segment, if the
// message carried one.
type Error struct {
	Code     int
	Message  string
	Type     string
	Argument int
}

func (e *Error) Error() string {
	if e.Argument != 0 || strings.HasSuffix(e.Message, "_0") {
		return "rpc error code " + strconv.Itoa(e.Code) + ": " + e.Type + " (" + strconv.Itoa(e.Argument) + ")"
	}
	return "rpc error code " + strconv.Itoa(e.Code) + ": " + e.Message
}

// New parses a server error message into its type and trailing numeric
// argument, matching the teacher's tgerr.New contract
// (pkg/gotd/tgerr/error_test.go).
func New(code int, message string) *Error {
	typ, arg, hasArg := splitTrailingInt(message)
	if !hasArg {
		return &Error{Code: code, Message: message, Type: message}
	}
	return &Error{Code: code, Message: message, Type: typ, Argument: arg}
}

// splitTrailingInt splits "FLOOD_WAIT_359" into ("FLOOD_WAIT", 359, true),
// and "GO_1337_METERS_AWAY" into ("GO_METERS_AWAY", 1337, true): the first
// underscore-delimited segment that is purely numeric is the argument, and
// is removed from the type name. A message with no numeric segment is
// returned untouched.
func splitTrailingInt(message string) (string, int, bool) {
	parts := strings.Split(message, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		rest := append(append([]string{}, parts[:i]...), parts[i+1:]...)
		return strings.Join(rest, "_"), n, true
	}
	return message, 0, false
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// AsType extracts a *Error from err if its Type matches typ.
func AsType(err error, typ string) (*Error, bool) {
	rpcErr, ok := As(err)
	if !ok || rpcErr.Type != typ {
		return nil, false
	}
	return rpcErr, true
}

// AsFloodWait extracts the FLOOD_WAIT duration argument (in seconds) if err
// is a FLOOD_WAIT_X error.
func AsFloodWait(err error) (int, bool) {
	rpcErr, ok := AsType(err, "FLOOD_WAIT")
	if !ok {
		return 0, false
	}
	return rpcErr.Argument, true
}

// Is reports whether err is a rpc error whose Type matches any of types.
func Is(err error, types ...string) bool {
	rpcErr, ok := As(err)
	if !ok {
		return false
	}
	for _, t := range types {
		if rpcErr.Type == t {
			return true
		}
	}
	return false
}

// IsCode reports whether err is a rpc error whose Code matches any of codes.
func IsCode(err error, codes ...int) bool {
	rpcErr, ok := As(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if rpcErr.Code == c {
			return true
		}
	}
	return false
}

// Well-known error type constants the core gives special treatment
// (spec.md §7).
const (
	ErrPhoneMigrate         = "PHONE_MIGRATE"
	ErrUserMigrate          = "USER_MIGRATE"
	ErrNetworkMigrate       = "NETWORK_MIGRATE"
	ErrFloodWait            = "FLOOD_WAIT"
	ErrSessionPasswordNeeded = "SESSION_PASSWORD_NEEDED"
)

// AsMigrate extracts the destination DC id from a PHONE_MIGRATE_X /
// USER_MIGRATE_X / NETWORK_MIGRATE_X error.
func AsMigrate(err error) (dc int, ok bool) {
	rpcErr, ok := As(err)
	if !ok {
		return 0, false
	}
	switch rpcErr.Type {
	case ErrPhoneMigrate, ErrUserMigrate, ErrNetworkMigrate:
		return rpcErr.Argument, true
	default:
		return 0, false
	}
}
