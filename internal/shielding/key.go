package shielding

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// ShieldingKey is the enclave's RSA public key used to shield requests.
type ShieldingKey struct {
	*rsa.PublicKey
}

// leBytes marshals as a JSON array of numbers holding a little-endian integer.
type leBytes []byte

func (b leBytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (b *leBytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type shieldingKeyJSON struct {
	N leBytes `json:"n"`
	E leBytes `json:"e"`
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// ParseShieldingKey parses the enclave's {"n":[..],"e":[..]} representation.
func ParseShieldingKey(data []byte) (ShieldingKey, error) {
	var raw shieldingKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ShieldingKey{}, fmt.Errorf("failed to unmarshal shielding key: %w", err)
	}
	if len(raw.N) == 0 || len(raw.E) == 0 {
		return ShieldingKey{}, errors.New("shielding key is missing modulus or exponent")
	}
	n := new(big.Int).SetBytes(reverse(raw.N))
	e := new(big.Int).SetBytes(reverse(raw.E))
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return ShieldingKey{}, fmt.Errorf("unsupported public exponent %s", e)
	}
	if n.BitLen() < 1024 {
		return ShieldingKey{}, fmt.Errorf("shielding key modulus too small: %d bits", n.BitLen())
	}
	return ShieldingKey{PublicKey: &rsa.PublicKey{N: n, E: int(e.Int64())}}, nil
}

// MarshalJSON renders the key the way the enclave publishes it.
func (k ShieldingKey) MarshalJSON() ([]byte, error) {
	if k.PublicKey == nil {
		return nil, errors.New("empty shielding key")
	}
	return json.Marshal(shieldingKeyJSON{
		N: reverse(k.N.Bytes()),
		E: reverse(big.NewInt(int64(k.E)).Bytes()),
	})
}

// MaxPlaintext is the largest payload RSA-OAEP-SHA256 can carry with this key.
func (k ShieldingKey) MaxPlaintext() int {
	return k.Size() - 2*sha256.Size - 2
}
