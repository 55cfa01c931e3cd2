package shielding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"io"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/types"
)

var ErrPayloadTooLarge = errors.New("payload exceeds RSA-OAEP capacity")

func cryptoErr(op string, err error) error {
	return &types.CryptoError{Op: op, Err: err}
}

// EncryptRSA encrypts plaintext with RSA-OAEP-SHA256.
func EncryptRSA(key ShieldingKey, plaintext []byte, random io.Reader) ([]byte, error) {
	if key.PublicKey == nil {
		return nil, cryptoErr("rsa encrypt", errors.New("missing shielding key"))
	}
	if len(plaintext) > key.MaxPlaintext() {
		return nil, cryptoErr("rsa encrypt", fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(plaintext), key.MaxPlaintext()))
	}
	if random == nil {
		random = rand.Reader
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), random, key.PublicKey, plaintext, nil)
	if err != nil {
		return nil, cryptoErr("rsa encrypt", err)
	}
	return ciphertext, nil
}

// NewRequestAesKey draws a fresh AES-256 key. A nil reader means crypto/rand.
func NewRequestAesKey(random io.Reader) (codec.RequestAesKey, error) {
	if random == nil {
		random = rand.Reader
	}
	var key codec.RequestAesKey
	if _, err := io.ReadFull(random, key[:]); err != nil {
		return codec.RequestAesKey{}, cryptoErr("aes key", err)
	}
	return key, nil
}

// WrapKey encrypts an AES key for the enclave.
func WrapKey(key ShieldingKey, aesKey codec.RequestAesKey, random io.Reader) ([]byte, error) {
	return EncryptRSA(key, aesKey[:], random)
}

func newGCM(key codec.RequestAesKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealAES encrypts plaintext with AES-256-GCM under a fresh 96-bit nonce.
func SealAES(key codec.RequestAesKey, plaintext, aad []byte, random io.Reader) (codec.AesOutput, error) {
	if random == nil {
		random = rand.Reader
	}
	gcm, err := newGCM(key)
	if err != nil {
		return codec.AesOutput{}, cryptoErr("aes seal", err)
	}
	var out codec.AesOutput
	if _, err := io.ReadFull(random, out.Nonce[:]); err != nil {
		return codec.AesOutput{}, cryptoErr("aes nonce", err)
	}
	out.Ciphertext = gcm.Seal(nil, out.Nonce[:], plaintext, aad)
	if len(aad) > 0 {
		out.Aad = append([]byte(nil), aad...)
	}
	return out, nil
}

// OpenAES authenticates and decrypts an AesOutput.
func OpenAES(key codec.RequestAesKey, sealed codec.AesOutput) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, cryptoErr("aes open", err)
	}
	plaintext, err := gcm.Open(nil, sealed.Nonce[:], sealed.Ciphertext, sealed.Aad)
	if err != nil {
		return nil, cryptoErr("aes open", err)
	}
	return plaintext, nil
}

type shieldOptions struct {
	random   io.Reader
	forceAES bool
	aesKey   *codec.RequestAesKey
	aad      []byte
}

type Option func(*shieldOptions)

// WithRandom replaces crypto/rand; only tests should need it.
func WithRandom(r io.Reader) Option {
	return func(o *shieldOptions) { o.random = r }
}

// WithAES forces the hybrid scheme even for payloads that fit RSA.
func WithAES() Option {
	return func(o *shieldOptions) { o.forceAES = true }
}

// WithAesKey forces the hybrid scheme with a caller-chosen key, typically the key
// embedded in the call so responses can be opened with it.
func WithAesKey(key codec.RequestAesKey) Option {
	return func(o *shieldOptions) {
		o.forceAES = true
		o.aesKey = &key
	}
}

func WithAad(aad []byte) Option {
	return func(o *shieldOptions) { o.aad = aad }
}

// Shield encrypts an encoded operation for shard. The hybrid scheme is used when
// requested or when the payload does not fit RSA-OAEP.
func Shield(operation []byte, shard codec.ShardIdentifier, key ShieldingKey, opts ...Option) (codec.RequestEnvelope, error) {
	o := shieldOptions{random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}
	if key.PublicKey == nil {
		return codec.RequestEnvelope{}, cryptoErr("shield", errors.New("missing shielding key"))
	}

	if !o.forceAES && len(operation) <= key.MaxPlaintext() {
		payload, err := EncryptRSA(key, operation, o.random)
		if err != nil {
			return codec.RequestEnvelope{}, err
		}
		log.Debugf("shielded %d byte operation with rsa", len(operation))
		return codec.RequestEnvelope{Rsa: &codec.RsaRequest{Shard: shard, Payload: payload}}, nil
	}

	var aesKey codec.RequestAesKey
	if o.aesKey != nil {
		aesKey = *o.aesKey
	} else {
		var err error
		if aesKey, err = NewRequestAesKey(o.random); err != nil {
			return codec.RequestEnvelope{}, err
		}
	}
	wrapped, err := WrapKey(key, aesKey, o.random)
	if err != nil {
		return codec.RequestEnvelope{}, err
	}
	sealed, err := SealAES(aesKey, operation, o.aad, o.random)
	if err != nil {
		return codec.RequestEnvelope{}, err
	}
	log.Debugf("shielded %d byte operation with aes", len(operation))
	return codec.RequestEnvelope{Aes: &codec.AesRequest{Shard: shard, Key: wrapped, Payload: sealed}}, nil
}
