package identity

import (
	"errors"
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"strings"
	"tee/trusted-ops/internal/codec"
)

// Kind is the identity variant tag.
type Kind byte

const (
	Twitter Kind = iota
	Discord
	Github
	Substrate
	Evm
	Bitcoin

	kindCount
)

const (
	SubstrateAddressLength = 32
	EvmAddressLength       = 20
	BitcoinPubkeyLength    = 33
)

var kindNames = [...]string{"Twitter", "Discord", "Github", "Substrate", "Evm", "Bitcoin"}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

var ErrWeb2Account = errors.New("web2 identities have no account id")

// Identity is a principal: a Web2 handle or a Web3 address. Values are immutable;
// accessors return copies.
type Identity struct {
	kind Kind
	data []byte
}

func newWeb2(kind Kind, handle string) Identity {
	if handle == "" {
		return Identity{kind: kind}
	}
	return Identity{kind: kind, data: []byte(handle)}
}

func TwitterHandle(handle string) Identity { return newWeb2(Twitter, handle) }
func DiscordHandle(handle string) Identity { return newWeb2(Discord, handle) }
func GithubHandle(handle string) Identity  { return newWeb2(Github, handle) }

func newWeb3(kind Kind, want int, address []byte) (Identity, error) {
	if len(address) != want {
		return Identity{}, fmt.Errorf("%s address must be %d bytes, got %d", kind, want, len(address))
	}
	return Identity{kind: kind, data: append([]byte(nil), address...)}, nil
}

func NewSubstrate(address []byte) (Identity, error) {
	return newWeb3(Substrate, SubstrateAddressLength, address)
}

func NewEvm(address []byte) (Identity, error) {
	return newWeb3(Evm, EvmAddressLength, address)
}

// NewBitcoin takes a 33-byte compressed secp256k1 public key.
func NewBitcoin(pubkey []byte) (Identity, error) {
	return newWeb3(Bitcoin, BitcoinPubkeyLength, pubkey)
}

// Parse builds an identity from its kind name and either a handle (web2) or a 0x-hex
// address (web3), the form used on the command line.
func Parse(kind, value string) (Identity, error) {
	for i, name := range kindNames {
		if !strings.EqualFold(name, kind) {
			continue
		}
		k := Kind(i)
		if k < Substrate {
			return newWeb2(k, value), nil
		}
		raw, err := codec.FromHex(value)
		if err != nil {
			return Identity{}, err
		}
		switch k {
		case Substrate:
			return NewSubstrate(raw)
		case Evm:
			return NewEvm(raw)
		default:
			return NewBitcoin(raw)
		}
	}
	return Identity{}, fmt.Errorf("unknown identity kind %q", kind)
}

func (id Identity) Kind() Kind { return id.kind }

// Bytes returns the handle or address bytes.
func (id Identity) Bytes() []byte { return append([]byte(nil), id.data...) }

func (id Identity) IsWeb2() bool      { return id.kind < Substrate }
func (id Identity) IsWeb3() bool      { return !id.IsWeb2() }
func (id Identity) IsSubstrate() bool { return id.kind == Substrate }
func (id Identity) IsEvm() bool       { return id.kind == Evm }
func (id Identity) IsBitcoin() bool   { return id.kind == Bitcoin }

func (id Identity) Equal(other Identity) bool {
	return id.kind == other.kind && string(id.data) == string(other.data)
}

// MatchesNetworks reports whether networks is a valid network set for this identity.
// Web2 identities accept only the empty set; Web3 identities need at least one
// network, all from their own family.
func (id Identity) MatchesNetworks(networks Networks) bool {
	if id.IsWeb2() {
		return len(networks) == 0
	}
	if len(networks) == 0 {
		return false
	}
	for _, n := range networks {
		switch {
		case id.IsSubstrate() && n.IsSubstrate():
		case id.IsEvm() && n.IsEvm():
		case id.IsBitcoin() && n.IsBitcoin():
		default:
			return false
		}
	}
	return true
}

// ToAccountID maps a Web3 identity to the 32-byte account used for nonce bookkeeping.
func (id Identity) ToAccountID() (codec.Hash, error) {
	switch id.kind {
	case Substrate:
		return codec.HashFromBytes(id.data)
	case Evm:
		return codec.Blake2_256(append([]byte("evm:"), id.data...)), nil
	case Bitcoin:
		return codec.Blake2_256(id.data), nil
	}
	return codec.Hash{}, ErrWeb2Account
}

// Hex renders the handle or address bytes as 0x-hex.
func (id Identity) Hex() string {
	return hexutil.Encode(id.data)
}

func (id Identity) String() string {
	if id.IsWeb2() {
		return fmt.Sprintf("%s(%s)", id.kind, string(id.data))
	}
	return fmt.Sprintf("%s(%s)", id.kind, id.Hex())
}

func (id Identity) Encode(encoder scale.Encoder) error {
	if id.kind >= kindCount {
		return fmt.Errorf("%w: identity %d", codec.ErrUnknownTag, id.kind)
	}
	if err := encoder.PushByte(byte(id.kind)); err != nil {
		return err
	}
	if id.IsWeb2() {
		return codec.WriteBytes(encoder, id.data)
	}
	if want := fixedLength(id.kind); len(id.data) != want {
		return fmt.Errorf("%s address must be %d bytes, got %d", id.kind, want, len(id.data))
	}
	return encoder.Write(id.data)
}

func (id *Identity) Decode(decoder scale.Decoder) error {
	tag, err := codec.ReadTag(decoder, byte(kindCount))
	if err != nil {
		return err
	}
	kind := Kind(tag)
	if kind < Substrate {
		handle, err := codec.ReadBytes(decoder)
		if err != nil {
			return err
		}
		*id = Identity{kind: kind, data: handle}
		return nil
	}
	data := make([]byte, fixedLength(kind))
	if err := codec.ReadFixed(decoder, data); err != nil {
		return err
	}
	*id = Identity{kind: kind, data: data}
	return nil
}

func fixedLength(kind Kind) int {
	switch kind {
	case Substrate:
		return SubstrateAddressLength
	case Evm:
		return EvmAddressLength
	case Bitcoin:
		return BitcoinPubkeyLength
	}
	return 0
}
