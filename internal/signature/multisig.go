package signature

import (
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"tee/trusted-ops/internal/codec"
)

// Algorithm is the MultiSignature variant tag.
type Algorithm byte

const (
	Ed25519 Algorithm = iota
	Sr25519
	Ecdsa
	Ethereum
	EthereumPrettified
	Bitcoin
	BitcoinPrettified

	algorithmCount
)

var algorithmNames = [...]string{"Ed25519", "Sr25519", "Ecdsa", "Ethereum", "EthereumPrettified", "Bitcoin", "BitcoinPrettified"}

func (a Algorithm) String() string {
	if a < algorithmCount {
		return algorithmNames[a]
	}
	return fmt.Sprintf("Algorithm(%d)", byte(a))
}

// Size is the fixed signature length for the algorithm.
func (a Algorithm) Size() int {
	if a == Ed25519 || a == Sr25519 {
		return 64
	}
	return 65
}

// MultiSignature is a signature tagged with the scheme that produced it.
type MultiSignature struct {
	Algorithm Algorithm
	Data      []byte
}

// New checks the length of raw against the algorithm.
func New(algorithm Algorithm, raw []byte) (MultiSignature, error) {
	if algorithm >= algorithmCount {
		return MultiSignature{}, fmt.Errorf("%w: signature %d", codec.ErrUnknownTag, algorithm)
	}
	if len(raw) != algorithm.Size() {
		return MultiSignature{}, fmt.Errorf("%s signature must be %d bytes, got %d", algorithm, algorithm.Size(), len(raw))
	}
	return MultiSignature{Algorithm: algorithm, Data: append([]byte(nil), raw...)}, nil
}

func (s MultiSignature) String() string {
	return fmt.Sprintf("%s(%s)", s.Algorithm, hexutil.Encode(s.Data))
}

func (s MultiSignature) Encode(encoder scale.Encoder) error {
	if s.Algorithm >= algorithmCount {
		return fmt.Errorf("%w: signature %d", codec.ErrUnknownTag, s.Algorithm)
	}
	if len(s.Data) != s.Algorithm.Size() {
		return fmt.Errorf("%s signature must be %d bytes, got %d", s.Algorithm, s.Algorithm.Size(), len(s.Data))
	}
	if err := encoder.PushByte(byte(s.Algorithm)); err != nil {
		return err
	}
	return encoder.Write(s.Data)
}

func (s *MultiSignature) Decode(decoder scale.Decoder) error {
	tag, err := codec.ReadTag(decoder, byte(algorithmCount))
	if err != nil {
		return err
	}
	alg := Algorithm(tag)
	data := make([]byte, alg.Size())
	if err := codec.ReadFixed(decoder, data); err != nil {
		return err
	}
	*s = MultiSignature{Algorithm: alg, Data: data}
	return nil
}
