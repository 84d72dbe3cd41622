// Package dcs ships the well-known Telegram datacenter table and the
// production-lane opt-in gate (spec.md §6, "Well-known DCs" /
// "Environment / lane isolation").
package dcs

import (
	"os"

	"github.com/meniwap/telecraftor-core/session"
)

// Endpoint is one DC's (host, port) pair for a given network lane.
type Endpoint struct {
	Host string
	Port int
}

// Table maps (network_lane, dc_id) to a default Endpoint. Callers may
// override any entry; this is only a sensible default (spec.md §6).
type Table map[session.Lane]map[int]Endpoint

// allowProdEnvVar gates accidental use of the production lane from a
// development harness (spec.md §6, "requires an explicit opt-in ... both
// a flag and an environment variable").
const allowProdEnvVar = "TELECRAFTOR_ALLOW_PROD"

// Default is the built-in table: Telegram's public test DCs 1 through 3 and
// production DCs 1 through 5.
var Default = Table{
	session.LaneTest: {
		1: {Host: "149.154.175.10", Port: 443},
		2: {Host: "149.154.167.40", Port: 443},
		3: {Host: "149.154.175.117", Port: 443},
	},
	session.LaneProd: {
		1: {Host: "149.154.175.53", Port: 443},
		2: {Host: "149.154.167.51", Port: 443},
		3: {Host: "149.154.175.100", Port: 443},
		4: {Host: "149.154.167.91", Port: 443},
		5: {Host: "91.108.56.130", Port: 443},
	},
}

// Lookup returns lane's default endpoint for dcID.
func (t Table) Lookup(lane session.Lane, dcID int) (Endpoint, bool) {
	byDC, ok := t[lane]
	if !ok {
		return Endpoint{}, false
	}
	ep, ok := byDC[dcID]
	return ep, ok
}

// ErrProdNotAllowed is returned when the caller requests the production
// lane without having opted in.
type ErrProdNotAllowed struct{}

func (ErrProdNotAllowed) Error() string {
	return "dcs: production lane requires AllowProd and " + allowProdEnvVar + "=1"
}

// CheckLane enforces spec.md §6's two-factor opt-in for the production
// lane: the caller must both pass allowProd=true and have the environment
// variable set, so a development harness can't reach production by
// accident through a single flipped flag.
func CheckLane(lane session.Lane, allowProd bool) error {
	if lane != session.LaneProd {
		return nil
	}
	if allowProd && os.Getenv(allowProdEnvVar) == "1" {
		return nil
	}
	return ErrProdNotAllowed{}
}
