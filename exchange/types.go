package exchange

import (
	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/bin"
)

// Constructor ids for the unencrypted handshake messages (spec.md §4.2),
// per MTProto's public mtproto.tl schema.
const (
	idVector uint32 = 0x1cb5c415

	idReqPQMulti      uint32 = 0xbe7e8ef1
	idResPQ           uint32 = 0x05162463
	idPQInnerData     uint32 = 0x83c95aec
	idReqDHParams     uint32 = 0xd712e4be
	idServerDHParamsOk   uint32 = 0xd0e8075c
	idServerDHParamsFail uint32 = 0x79cb045d
	idServerDHInnerData  uint32 = 0xb5890dba
	idClientDHInnerData  uint32 = 0x6643b654
	idSetClientDHParams  uint32 = 0xf5045f1f
	idDHGenOk     uint32 = 0x3bcbf734
	idDHGenRetry  uint32 = 0x46dc1fb9
	idDHGenFail   uint32 = 0xa69dae02
)

// ReqPQMulti is the first unencrypted message the client ever sends
// (spec.md §4.2 step 1).
type ReqPQMulti struct {
	Nonce [16]byte
}

func (r *ReqPQMulti) TypeID() uint32 { return idReqPQMulti }

func (r *ReqPQMulti) Encode(b *bin.Buffer) error {
	b.PutID(idReqPQMulti)
	b.PutInt128(r.Nonce)
	return nil
}

func (r *ReqPQMulti) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != idReqPQMulti {
		return errors.Newf("unexpected constructor %#x for req_pq_multi", id)
	}
	nonce, err := b.Int128()
	if err != nil {
		return err
	}
	r.Nonce = nonce
	return nil
}

// ResPQ is the server's reply to req_pq_multi (spec.md §4.2 step 1).
type ResPQ struct {
	Nonce                       [16]byte
	ServerNonce                 [16]byte
	PQ                          []byte
	ServerPublicKeyFingerprints []int64
}

func (r *ResPQ) TypeID() uint32 { return idResPQ }

func (r *ResPQ) Encode(b *bin.Buffer) error {
	b.PutID(idResPQ)
	b.PutInt128(r.Nonce)
	b.PutInt128(r.ServerNonce)
	b.PutBytes(r.PQ)
	b.PutID(idVector)
	b.PutInt32(int32(len(r.ServerPublicKeyFingerprints)))
	for _, fp := range r.ServerPublicKeyFingerprints {
		b.PutInt64(fp)
	}
	return nil
}

func (r *ResPQ) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != idResPQ {
		return errors.Newf("unexpected constructor %#x for resPQ", id)
	}
	var err error
	if r.Nonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if r.ServerNonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "server_nonce")
	}
	if r.PQ, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "pq")
	}
	vecID, err := b.ConsumeID()
	if err != nil {
		return errors.Wrap(err, "fingerprints vector id")
	}
	if vecID != idVector {
		return errors.Newf("unexpected constructor %#x for fingerprints vector", vecID)
	}
	n, err := b.Int32()
	if err != nil {
		return errors.Wrap(err, "fingerprints count")
	}
	fps := make([]int64, n)
	for i := range fps {
		if fps[i], err = b.Int64(); err != nil {
			return errors.Wrap(err, "fingerprint")
		}
	}
	r.ServerPublicKeyFingerprints = fps
	return nil
}

// PQInnerData is RSA-encrypted and sent as req_DH_params.encrypted_data
// (spec.md §4.2 step 2).
type PQInnerData struct {
	PQ          []byte
	P           []byte
	Q           []byte
	Nonce       [16]byte
	ServerNonce [16]byte
	NewNonce    [32]byte
}

func (d *PQInnerData) Encode(b *bin.Buffer) error {
	b.PutID(idPQInnerData)
	b.PutBytes(d.PQ)
	b.PutBytes(d.P)
	b.PutBytes(d.Q)
	b.PutInt128(d.Nonce)
	b.PutInt128(d.ServerNonce)
	b.PutInt256(d.NewNonce)
	return nil
}

// Decode reverses Encode; used by a server-side (or test) peer recovering
// the RSA-decrypted p_q_inner_data.
func (d *PQInnerData) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != idPQInnerData {
		return errors.Newf("unexpected constructor %#x for p_q_inner_data", id)
	}
	var err error
	if d.PQ, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "pq")
	}
	if d.P, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "p")
	}
	if d.Q, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "q")
	}
	if d.Nonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if d.ServerNonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "server_nonce")
	}
	if d.NewNonce, err = b.Int256(); err != nil {
		return errors.Wrap(err, "new_nonce")
	}
	return nil
}

// ReqDHParams asks the server to start the DH exchange (spec.md §4.2 step 2).
type ReqDHParams struct {
	Nonce                [16]byte
	ServerNonce          [16]byte
	P                    []byte
	Q                    []byte
	PublicKeyFingerprint int64
	EncryptedData        []byte
}

func (r *ReqDHParams) TypeID() uint32 { return idReqDHParams }

func (r *ReqDHParams) Encode(b *bin.Buffer) error {
	b.PutID(idReqDHParams)
	b.PutInt128(r.Nonce)
	b.PutInt128(r.ServerNonce)
	b.PutBytes(r.P)
	b.PutBytes(r.Q)
	b.PutInt64(r.PublicKeyFingerprint)
	b.PutBytes(r.EncryptedData)
	return nil
}

func (r *ReqDHParams) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != idReqDHParams {
		return errors.Newf("unexpected constructor %#x for req_DH_params", id)
	}
	var err error
	if r.Nonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if r.ServerNonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "server_nonce")
	}
	if r.P, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "p")
	}
	if r.Q, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "q")
	}
	if r.PublicKeyFingerprint, err = b.Int64(); err != nil {
		return errors.Wrap(err, "public_key_fingerprint")
	}
	if r.EncryptedData, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "encrypted_data")
	}
	return nil
}

// ServerDHParamsOk is the server's positive reply to req_DH_params
// (spec.md §4.2 step 3); ServerDHParamsFail is the negative one.
type ServerDHParamsOk struct {
	Nonce            [16]byte
	ServerNonce      [16]byte
	EncryptedAnswer  []byte
}

func (s *ServerDHParamsOk) TypeID() uint32 { return idServerDHParamsOk }

func (s *ServerDHParamsOk) Encode(b *bin.Buffer) error {
	b.PutID(idServerDHParamsOk)
	b.PutInt128(s.Nonce)
	b.PutInt128(s.ServerNonce)
	b.PutBytes(s.EncryptedAnswer)
	return nil
}

func (s *ServerDHParamsOk) Decode(b *bin.Buffer) error {
	var err error
	if s.Nonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if s.ServerNonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "server_nonce")
	}
	if s.EncryptedAnswer, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "encrypted_answer")
	}
	return nil
}

// ServerDHParamsFail reports a nonce mismatch before any DH work happened.
type ServerDHParamsFail struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	NewNonceHash  [16]byte
}

func (s *ServerDHParamsFail) Decode(b *bin.Buffer) error {
	var err error
	if s.Nonce, err = b.Int128(); err != nil {
		return err
	}
	if s.ServerNonce, err = b.Int128(); err != nil {
		return err
	}
	if s.NewNonceHash, err = b.Int128(); err != nil {
		return err
	}
	return nil
}

// ServerDHInnerData is decrypted from ServerDHParamsOk.EncryptedAnswer
// (spec.md §4.2 step 3).
type ServerDHInnerData struct {
	Nonce       [16]byte
	ServerNonce [16]byte
	G           int32
	DHPrime     []byte
	GA          []byte
	ServerTime  int32
}

func (d *ServerDHInnerData) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != idServerDHInnerData {
		return errors.Newf("unexpected constructor %#x for server_DH_inner_data", id)
	}
	var err error
	if d.Nonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if d.ServerNonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "server_nonce")
	}
	if d.G, err = b.Int32(); err != nil {
		return errors.Wrap(err, "g")
	}
	if d.DHPrime, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "dh_prime")
	}
	if d.GA, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "g_a")
	}
	if d.ServerTime, err = b.Int32(); err != nil {
		return errors.Wrap(err, "server_time")
	}
	return nil
}

func (d *ServerDHInnerData) Encode(b *bin.Buffer) error {
	b.PutID(idServerDHInnerData)
	b.PutInt128(d.Nonce)
	b.PutInt128(d.ServerNonce)
	b.PutInt32(d.G)
	b.PutBytes(d.DHPrime)
	b.PutBytes(d.GA)
	b.PutInt32(d.ServerTime)
	return nil
}

// ClientDHInnerData is what the client AES-IGE-encrypts into
// set_client_DH_params.encrypted_data (spec.md §4.2 step 4).
type ClientDHInnerData struct {
	Nonce       [16]byte
	ServerNonce [16]byte
	RetryID     int64
	GB          []byte
}

func (d *ClientDHInnerData) Encode(b *bin.Buffer) error {
	b.PutID(idClientDHInnerData)
	b.PutInt128(d.Nonce)
	b.PutInt128(d.ServerNonce)
	b.PutInt64(d.RetryID)
	b.PutBytes(d.GB)
	return nil
}

func (d *ClientDHInnerData) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != idClientDHInnerData {
		return errors.Newf("unexpected constructor %#x for client_DH_inner_data", id)
	}
	var err error
	if d.Nonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if d.ServerNonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "server_nonce")
	}
	if d.RetryID, err = b.Int64(); err != nil {
		return errors.Wrap(err, "retry_id")
	}
	if d.GB, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "g_b")
	}
	return nil
}

// SetClientDHParams submits the client's half of the DH exchange
// (spec.md §4.2 step 4).
type SetClientDHParams struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	EncryptedData []byte
}

func (s *SetClientDHParams) TypeID() uint32 { return idSetClientDHParams }

func (s *SetClientDHParams) Encode(b *bin.Buffer) error {
	b.PutID(idSetClientDHParams)
	b.PutInt128(s.Nonce)
	b.PutInt128(s.ServerNonce)
	b.PutBytes(s.EncryptedData)
	return nil
}

func (s *SetClientDHParams) Decode(b *bin.Buffer) error {
	if id, err := b.ConsumeID(); err != nil {
		return err
	} else if id != idSetClientDHParams {
		return errors.Newf("unexpected constructor %#x for set_client_DH_params", id)
	}
	var err error
	if s.Nonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "nonce")
	}
	if s.ServerNonce, err = b.Int128(); err != nil {
		return errors.Wrap(err, "server_nonce")
	}
	if s.EncryptedData, err = b.Bytes(); err != nil {
		return errors.Wrap(err, "encrypted_data")
	}
	return nil
}

// DHGenOk, DHGenRetry and DHGenFail are the three possible replies to
// set_client_DH_params (spec.md §4.2 step 5).
type DHGenOk struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	NewNonceHash1 [16]byte
}

func (d *DHGenOk) Decode(b *bin.Buffer) error {
	var err error
	if d.Nonce, err = b.Int128(); err != nil {
		return err
	}
	if d.ServerNonce, err = b.Int128(); err != nil {
		return err
	}
	if d.NewNonceHash1, err = b.Int128(); err != nil {
		return err
	}
	return nil
}

// Encode is used by a server-role peer (e.g. a test harness) to produce the
// reply a real client only ever decodes.
func (d *DHGenOk) Encode(b *bin.Buffer) error {
	b.PutID(idDHGenOk)
	b.PutInt128(d.Nonce)
	b.PutInt128(d.ServerNonce)
	b.PutInt128(d.NewNonceHash1)
	return nil
}

type DHGenRetry struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	NewNonceHash2 [16]byte
}

func (d *DHGenRetry) Decode(b *bin.Buffer) error {
	var err error
	if d.Nonce, err = b.Int128(); err != nil {
		return err
	}
	if d.ServerNonce, err = b.Int128(); err != nil {
		return err
	}
	if d.NewNonceHash2, err = b.Int128(); err != nil {
		return err
	}
	return nil
}

type DHGenFail struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	NewNonceHash3 [16]byte
}

func (d *DHGenFail) Decode(b *bin.Buffer) error {
	var err error
	if d.Nonce, err = b.Int128(); err != nil {
		return err
	}
	if d.ServerNonce, err = b.Int128(); err != nil {
		return err
	}
	if d.NewNonceHash3, err = b.Int128(); err != nil {
		return err
	}
	return nil
}
