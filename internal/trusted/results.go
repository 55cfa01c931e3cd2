package trusted

import (
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"math/big"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
)

// maxGraphEntries bounds decoded identity graphs.
const maxGraphEntries = 1 << 16

// IDGraphEntry is one identity linked to an account.
type IDGraphEntry struct {
	Identity identity.Identity
	Networks identity.Networks
	Active   bool
}

func (e IDGraphEntry) Encode(encoder scale.Encoder) error {
	if err := encoder.Encode(e.Identity); err != nil {
		return err
	}
	if err := encoder.Encode(e.Networks); err != nil {
		return err
	}
	return codec.WriteBool(encoder, e.Active)
}

func (e *IDGraphEntry) Decode(decoder scale.Decoder) error {
	if err := decoder.Decode(&e.Identity); err != nil {
		return err
	}
	if err := decoder.Decode(&e.Networks); err != nil {
		return err
	}
	var err error
	e.Active, err = codec.ReadBool(decoder)
	return err
}

// IDGraph is the id_graph getter result.
type IDGraph []IDGraphEntry

func (g IDGraph) Encode(encoder scale.Encoder) error {
	if err := encoder.EncodeUintCompact(*big.NewInt(int64(len(g)))); err != nil {
		return err
	}
	for _, entry := range g {
		if err := encoder.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

func (g *IDGraph) Decode(decoder scale.Decoder) error {
	n, err := decoder.DecodeUintCompact()
	if err != nil {
		return err
	}
	if !n.IsUint64() || n.Uint64() > maxGraphEntries {
		return fmt.Errorf("%w: %s graph entries", codec.ErrTooLong, n)
	}
	out := make(IDGraph, 0, n.Uint64())
	for i := uint64(0); i < n.Uint64(); i++ {
		var entry IDGraphEntry
		if err := decoder.Decode(&entry); err != nil {
			return err
		}
		out = append(out, entry)
	}
	*g = out
	return nil
}

// Balance is a u128 getter result.
type Balance struct {
	Value *big.Int
}

func (b Balance) Encode(encoder scale.Encoder) error {
	return encodeU128(encoder, b.Value)
}

func (b *Balance) Decode(decoder scale.Decoder) error {
	var err error
	b.Value, err = decodeU128(decoder)
	return err
}

func DecodeBalance(value []byte) (*big.Int, error) {
	var b Balance
	if err := codec.Decode(value, &b, "Balance"); err != nil {
		return nil, err
	}
	return b.Value, nil
}

func DecodeNonce(value []byte) (uint32, error) {
	var nonce uint32
	if err := codec.Decode(value, &nonce, "Index"); err != nil {
		return 0, err
	}
	return nonce, nil
}

func DecodeIDGraph(value []byte) (IDGraph, error) {
	var g IDGraph
	if err := codec.Decode(value, &g, "IDGraph"); err != nil {
		return nil, err
	}
	return g, nil
}
