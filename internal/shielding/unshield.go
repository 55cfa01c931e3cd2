package shielding

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"tee/trusted-ops/internal/codec"
)

// Decrypter is the enclave-side capability of opening RSA-shielded data.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// RSADecrypter holds the private half of a shielding key.
type RSADecrypter struct {
	key *rsa.PrivateKey
}

func NewRSADecrypter(key *rsa.PrivateKey) *RSADecrypter {
	return &RSADecrypter{key: key}
}

func (d *RSADecrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, d.key, ciphertext, nil)
	if err != nil {
		return nil, cryptoErr("rsa decrypt", err)
	}
	return plaintext, nil
}

// PublicKey returns the shielding key clients encrypt with.
func (d *RSADecrypter) PublicKey() ShieldingKey {
	return ShieldingKey{PublicKey: &d.key.PublicKey}
}

// Unshield recovers the encoded operation and, for hybrid requests, the client's AES key.
func Unshield(envelope codec.RequestEnvelope, dec Decrypter) ([]byte, *codec.RequestAesKey, error) {
	switch {
	case envelope.Rsa != nil:
		plaintext, err := dec.Decrypt(envelope.Rsa.Payload)
		return plaintext, nil, err
	case envelope.Aes != nil:
		rawKey, err := dec.Decrypt(envelope.Aes.Key)
		if err != nil {
			return nil, nil, err
		}
		if len(rawKey) != codec.AesKeyLength {
			return nil, nil, cryptoErr("unwrap key", errors.New("unexpected aes key length"))
		}
		var key codec.RequestAesKey
		copy(key[:], rawKey)
		plaintext, err := OpenAES(key, envelope.Aes.Payload)
		if err != nil {
			return nil, nil, err
		}
		return plaintext, &key, nil
	}
	return nil, nil, cryptoErr("unshield", codec.ErrEmptyEnvelope)
}
