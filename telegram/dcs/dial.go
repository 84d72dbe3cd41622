package dcs

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/meniwap/telecraftor-core/exchange"
	"github.com/meniwap/telecraftor-core/mtcrypto"
	"github.com/meniwap/telecraftor-core/proto"
	"github.com/meniwap/telecraftor-core/session"
	"github.com/meniwap/telecraftor-core/transport"
	"github.com/meniwap/telecraftor-core/transport/codec"
)

// Framing names the wire framing a session is bound to (spec.md §4.1).
type Framing string

const (
	FramingIntermediate Framing = "intermediate"
	FramingAbridged     Framing = "abridged"
)

func codecFor(f Framing) codec.Codec {
	if f == FramingAbridged {
		return codec.Abridged{}
	}
	return codec.Intermediate{}
}

// Handshake dials ep, runs the L1 auth handshake (spec.md §4.2), and
// returns a freshly negotiated session.Data ready to save (spec.md §4.7,
// "connect ... otherwise run L1 handshake against the configured
// endpoint"). Grounded on the teacher's dcs.protocol wrapping a
// transport.Conn handshake, generalized from its fixed production
// endpoints to an arbitrary caller-supplied Endpoint/lane/framing.
func Handshake(ctx context.Context, ep Endpoint, lane session.Lane, dcID int, framing Framing, rsaKeys []mtcrypto.PublicKey, log *zap.Logger) (transport.Conn, session.Data, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	raw, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port)))
	if err != nil {
		return nil, session.Data{}, errors.Wrap(err, "dial datacenter")
	}

	conn := transport.New(raw, codecFor(framing))
	ids := proto.NewMessageIDGen(time.Now)

	result, err := exchange.ClientExchange(ctx, conn, rsaKeys, ids, log)
	if err != nil {
		_ = conn.Close()
		return nil, session.Data{}, errors.Wrap(err, "handshake")
	}

	data := session.Data{
		Lane:       lane,
		DCID:       dcID,
		Host:       ep.Host,
		Port:       ep.Port,
		Framing:    string(framing),
		AuthKey:    result.AuthKey,
		ServerSalt: result.ServerSalt,
	}
	return conn, data, nil
}
