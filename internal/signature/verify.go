package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"github.com/ChainSafe/go-schnorrkel"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ed25519"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
)

var (
	bytesPrefix        = []byte("<Bytes>")
	bytesSuffix        = []byte("</Bytes>")
	substrateContext   = []byte("substrate")
	bitcoinMessageHead = []byte("\x18Bitcoin Signed Message:\n")
)

// Verify reports whether sig is a valid signature of msg by id. An algorithm that does
// not belong to the identity's family never verifies.
func Verify(msg []byte, sig MultiSignature, id identity.Identity) bool {
	if len(sig.Data) != sig.Algorithm.Size() {
		return false
	}
	switch sig.Algorithm {
	case Ed25519, Sr25519, Ecdsa:
		if !id.IsSubstrate() {
			return false
		}
		for _, candidate := range [][]byte{msg, wrapBytes(msg)} {
			if verifySubstrate(candidate, sig, id.Bytes()) {
				return true
			}
		}
		return false
	case Ethereum:
		return id.IsEvm() && verifyEthereum(msg, sig.Data, id.Bytes())
	case EthereumPrettified:
		return id.IsEvm() && verifyEthereum(prettifyEthereum(msg), sig.Data, id.Bytes())
	case Bitcoin:
		return id.IsBitcoin() && verifyBitcoin(msg, sig.Data, id.Bytes())
	case BitcoinPrettified:
		return id.IsBitcoin() && verifyBitcoin(prettifyBitcoin(msg), sig.Data, id.Bytes())
	}
	return false
}

func wrapBytes(msg []byte) []byte {
	out := make([]byte, 0, len(bytesPrefix)+len(msg)+len(bytesSuffix))
	out = append(out, bytesPrefix...)
	out = append(out, msg...)
	return append(out, bytesSuffix...)
}

func prettifyEthereum(msg []byte) []byte {
	return []byte(hexutil.Encode(msg))
}

func prettifyBitcoin(msg []byte) []byte {
	return []byte(hexutil.Encode(msg)[2:])
}

func verifySubstrate(msg []byte, sig MultiSignature, address []byte) bool {
	switch sig.Algorithm {
	case Ed25519:
		return ed25519.Verify(ed25519.PublicKey(address), msg, sig.Data)
	case Sr25519:
		return verifySr25519(msg, sig.Data, address)
	case Ecdsa:
		hash := codec.Blake2_256(msg)
		pub, err := recoverPubkey(hash[:], sig.Data)
		if err != nil {
			return false
		}
		account := codec.Blake2_256(crypto.CompressPubkey(pub))
		return string(account[:]) == string(address)
	}
	return false
}

func verifySr25519(msg, sig, address []byte) bool {
	var pubBytes [32]byte
	var sigBytes [64]byte
	copy(pubBytes[:], address)
	copy(sigBytes[:], sig)

	pub := new(schnorrkel.PublicKey)
	if err := pub.Decode(pubBytes); err != nil {
		return false
	}
	s := new(schnorrkel.Signature)
	if err := s.Decode(sigBytes); err != nil {
		return false
	}
	ok, err := pub.Verify(s, schnorrkel.NewSigningContext(substrateContext, msg))
	if err != nil {
		log.Debugf("sr25519 verification failed: %v", err)
		return false
	}
	return ok
}

func verifyEthereum(msg, sig, address []byte) bool {
	pub, err := recoverPubkey(accounts.TextHash(msg), sig)
	if err != nil {
		return false
	}
	recovered := crypto.PubkeyToAddress(*pub)
	return string(recovered.Bytes()) == string(address)
}

// recoverPubkey accepts r||s||v with v either 0/1 or the legacy 27/28.
func recoverPubkey(hash, sig []byte) (*ecdsa.PublicKey, error) {
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	return crypto.SigToPub(hash, normalized)
}

// bitcoinMessageHash is the double SHA-256 of the signed-message preimage.
func bitcoinMessageHash(msg []byte) []byte {
	preimage := append([]byte(nil), bitcoinMessageHead...)
	preimage = appendVarInt(preimage, uint64(len(msg)))
	preimage = append(preimage, msg...)
	first := sha256.Sum256(preimage)
	second := sha256.Sum256(first[:])
	return second[:]
}

// appendVarInt writes a Bitcoin CompactSize integer.
func appendVarInt(b []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(b, byte(n))
	case n <= 0xffff:
		return binary.LittleEndian.AppendUint16(append(b, 0xfd), uint16(n))
	case n <= 0xffffffff:
		return binary.LittleEndian.AppendUint32(append(b, 0xfe), uint32(n))
	}
	return binary.LittleEndian.AppendUint64(append(b, 0xff), n)
}

// verifyBitcoin checks a compact signature header||r||s with header in 27..34.
func verifyBitcoin(msg, sig, pubkey []byte) bool {
	header := sig[0]
	if header < 27 || header > 34 {
		return false
	}
	recID := (header - 27) & 3
	rsv := make([]byte, 65)
	copy(rsv, sig[1:])
	rsv[64] = recID

	pub, err := crypto.SigToPub(bitcoinMessageHash(msg), rsv)
	if err != nil {
		return false
	}
	return string(crypto.CompressPubkey(pub)) == string(pubkey)
}
