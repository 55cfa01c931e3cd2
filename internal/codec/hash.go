package codec

import (
	"errors"
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const HashLength = 32

// Hash is a 32-byte value: block and operation hashes, mrenclave, shard identifiers.
type Hash [HashLength]byte

// ShardIdentifier names an enclave state partition. By convention the default shard
// equals the enclave's mrenclave.
type ShardIdentifier = Hash

// Blake2_256 hashes data with the 32-byte blake2b variant.
func Blake2_256(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

func (h Hash) Hex() string {
	return hexutil.Encode(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

func (h Hash) Base58() string {
	return base58.Encode(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) Encode(encoder scale.Encoder) error {
	return encoder.Write(h[:])
}

func (h *Hash) Decode(decoder scale.Decoder) error {
	return ReadFixed(decoder, h[:])
}

// HashFromBytes requires exactly 32 bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, fmt.Errorf("expected %d bytes, got %d", HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a 0x-prefixed 32-byte hex string.
func HashFromHex(s string) (Hash, error) {
	b, err := FromHex(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

// ShardFromBase58 parses the base58 form the worker expects in author_getNextNonce.
func ShardFromBase58(s string) (ShardIdentifier, error) {
	if s == "" {
		return Hash{}, errors.New("shard cannot be empty")
	}
	b, err := base58.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid base58 shard: %w", err)
	}
	return HashFromBytes(b)
}

// ParseShard accepts either a 0x-hex or a base58 shard.
func ParseShard(s string) (ShardIdentifier, error) {
	if len(s) > 2 && s[:2] == "0x" {
		return HashFromHex(s)
	}
	return ShardFromBase58(s)
}
