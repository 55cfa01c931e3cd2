package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"github.com/ChainSafe/go-schnorrkel"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ed25519"
	"strings"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
)

// Signer produces signatures for one identity.
type Signer interface {
	Identity() identity.Identity
	Sign(msg []byte) (MultiSignature, error)
}

type ed25519Signer struct {
	key ed25519.PrivateKey
	id  identity.Identity
}

// NewEd25519Signer derives a key pair from a 32-byte seed.
func NewEd25519Signer(seed []byte) (Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	id, err := identity.NewSubstrate(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &ed25519Signer{key: key, id: id}, nil
}

func (s *ed25519Signer) Identity() identity.Identity { return s.id }

func (s *ed25519Signer) Sign(msg []byte) (MultiSignature, error) {
	return New(Ed25519, ed25519.Sign(s.key, msg))
}

type sr25519Signer struct {
	secret *schnorrkel.SecretKey
	id     identity.Identity
}

// NewSr25519Signer derives a key pair from a 32-byte mini secret key.
func NewSr25519Signer(seed []byte) (Signer, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("sr25519 seed must be 32 bytes, got %d", len(seed))
	}
	var raw [32]byte
	copy(raw[:], seed)
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("failed deriving sr25519 key: %w", err)
	}
	pub := mini.Public().Encode()
	id, err := identity.NewSubstrate(pub[:])
	if err != nil {
		return nil, err
	}
	return &sr25519Signer{secret: mini.ExpandEd25519(), id: id}, nil
}

func (s *sr25519Signer) Identity() identity.Identity { return s.id }

func (s *sr25519Signer) Sign(msg []byte) (MultiSignature, error) {
	sig, err := s.secret.Sign(schnorrkel.NewSigningContext(substrateContext, msg))
	if err != nil {
		return MultiSignature{}, err
	}
	raw := sig.Encode()
	return New(Sr25519, raw[:])
}

type ecdsaSigner struct {
	key *ecdsa.PrivateKey
	id  identity.Identity
}

// NewEcdsaSigner builds a substrate ecdsa signer; its account is the blake2 hash of the
// compressed public key.
func NewEcdsaSigner(key *ecdsa.PrivateKey) (Signer, error) {
	account := codec.Blake2_256(crypto.CompressPubkey(&key.PublicKey))
	id, err := identity.NewSubstrate(account[:])
	if err != nil {
		return nil, err
	}
	return &ecdsaSigner{key: key, id: id}, nil
}

func (s *ecdsaSigner) Identity() identity.Identity { return s.id }

func (s *ecdsaSigner) Sign(msg []byte) (MultiSignature, error) {
	hash := codec.Blake2_256(msg)
	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return MultiSignature{}, err
	}
	return New(Ecdsa, sig)
}

type ethereumSigner struct {
	key        *ecdsa.PrivateKey
	id         identity.Identity
	prettified bool
}

// NewEthereumSigner signs EIP-191 personal messages. With prettified set the 0x-hex
// rendering of the message is signed, which is what browser wallets display.
func NewEthereumSigner(key *ecdsa.PrivateKey, prettified bool) (Signer, error) {
	id, err := identity.NewEvm(crypto.PubkeyToAddress(key.PublicKey).Bytes())
	if err != nil {
		return nil, err
	}
	return &ethereumSigner{key: key, id: id, prettified: prettified}, nil
}

func (s *ethereumSigner) Identity() identity.Identity { return s.id }

func (s *ethereumSigner) Sign(msg []byte) (MultiSignature, error) {
	algorithm := Ethereum
	if s.prettified {
		msg = prettifyEthereum(msg)
		algorithm = EthereumPrettified
	}
	signature, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return MultiSignature{}, err
	}
	// legacy recovery parameter, as wallets produce it
	signature[64] += byte(27)
	log.Debugf("ethereum signature (legacy) v: %v", signature[64])
	return New(algorithm, signature)
}

type bitcoinSigner struct {
	key        *ecdsa.PrivateKey
	id         identity.Identity
	prettified bool
}

// NewBitcoinSigner signs Bitcoin signed-messages with a compressed-key header.
func NewBitcoinSigner(key *ecdsa.PrivateKey, prettified bool) (Signer, error) {
	id, err := identity.NewBitcoin(crypto.CompressPubkey(&key.PublicKey))
	if err != nil {
		return nil, err
	}
	return &bitcoinSigner{key: key, id: id, prettified: prettified}, nil
}

func (s *bitcoinSigner) Identity() identity.Identity { return s.id }

func (s *bitcoinSigner) Sign(msg []byte) (MultiSignature, error) {
	algorithm := Bitcoin
	if s.prettified {
		msg = prettifyBitcoin(msg)
		algorithm = BitcoinPrettified
	}
	rsv, err := crypto.Sign(bitcoinMessageHash(msg), s.key)
	if err != nil {
		return MultiSignature{}, err
	}
	compact := make([]byte, 65)
	compact[0] = 27 + 4 + rsv[64]
	copy(compact[1:], rsv[:64])
	return New(algorithm, compact)
}

// KeyType names a signer flavour in configuration and on the command line.
type KeyType string

const (
	KeyEd25519            KeyType = "ed25519"
	KeySr25519            KeyType = "sr25519"
	KeyEcdsa              KeyType = "ecdsa"
	KeyEthereum           KeyType = "ethereum"
	KeyEthereumPrettified KeyType = "ethereum-prettified"
	KeyBitcoin            KeyType = "bitcoin"
	KeyBitcoinPrettified  KeyType = "bitcoin-prettified"
)

var ErrUnknownKeyType = errors.New("unknown key type")

// NewSigner builds a signer from a key type and raw secret: a 32-byte seed for the
// substrate schemes, a secp256k1 private key for the others.
func NewSigner(keyType KeyType, secret []byte) (Signer, error) {
	kt := KeyType(strings.ToLower(string(keyType)))
	switch kt {
	case KeyEd25519:
		return NewEd25519Signer(secret)
	case KeySr25519:
		return NewSr25519Signer(secret)
	case KeyEcdsa, KeyEthereum, KeyEthereumPrettified, KeyBitcoin, KeyBitcoinPrettified:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyType, keyType)
	}

	key, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
	}
	switch kt {
	case KeyEcdsa:
		return NewEcdsaSigner(key)
	case KeyEthereum, KeyEthereumPrettified:
		return NewEthereumSigner(key, kt == KeyEthereumPrettified)
	default:
		return NewBitcoinSigner(key, kt == KeyBitcoinPrettified)
	}
}

// ParseSigner parses "<type>:<0x-hex secret>".
func ParseSigner(value string) (Signer, error) {
	keyType, secretHex, found := strings.Cut(value, ":")
	if !found {
		return nil, errors.New("signer key must be formatted as <type>:<hex>")
	}
	if !strings.HasPrefix(secretHex, "0x") {
		secretHex = "0x" + secretHex
	}
	secret, err := hexutil.Decode(secretHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key hex: %w", err)
	}
	return NewSigner(KeyType(keyType), secret)
}
