package codec

import (
	"errors"
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

const (
	AesNonceLength = 12
	AesKeyLength   = 32
)

// RequestAesKey is a one-time AES-256 key chosen by the client for one request.
type RequestAesKey [AesKeyLength]byte

func (k RequestAesKey) Encode(encoder scale.Encoder) error {
	return encoder.Write(k[:])
}

func (k *RequestAesKey) Decode(decoder scale.Decoder) error {
	return ReadFixed(decoder, k[:])
}

// AesOutput is an AES-256-GCM sealed payload: ciphertext with the tag appended.
type AesOutput struct {
	Ciphertext []byte
	Aad        []byte
	Nonce      [AesNonceLength]byte
}

func (o AesOutput) Encode(encoder scale.Encoder) error {
	if err := WriteBytes(encoder, o.Ciphertext); err != nil {
		return err
	}
	if err := WriteBytes(encoder, o.Aad); err != nil {
		return err
	}
	return encoder.Write(o.Nonce[:])
}

func (o *AesOutput) Decode(decoder scale.Decoder) error {
	var err error
	if o.Ciphertext, err = ReadBytes(decoder); err != nil {
		return err
	}
	if o.Aad, err = ReadBytes(decoder); err != nil {
		return err
	}
	return ReadFixed(decoder, o.Nonce[:])
}

// RsaRequest carries an operation encrypted directly with the shielding key.
type RsaRequest struct {
	Shard   ShardIdentifier
	Payload []byte
}

func (r RsaRequest) Encode(encoder scale.Encoder) error {
	if err := encoder.Encode(r.Shard); err != nil {
		return err
	}
	return WriteBytes(encoder, r.Payload)
}

func (r *RsaRequest) Decode(decoder scale.Decoder) error {
	if err := r.Shard.Decode(decoder); err != nil {
		return err
	}
	var err error
	r.Payload, err = ReadBytes(decoder)
	return err
}

// AesRequest carries an operation sealed with a one-time AES key; Key is that AES key
// encrypted with the shielding key.
type AesRequest struct {
	Shard   ShardIdentifier
	Key     []byte
	Payload AesOutput
}

func (r AesRequest) Encode(encoder scale.Encoder) error {
	if err := encoder.Encode(r.Shard); err != nil {
		return err
	}
	if err := WriteBytes(encoder, r.Key); err != nil {
		return err
	}
	return encoder.Encode(r.Payload)
}

func (r *AesRequest) Decode(decoder scale.Decoder) error {
	if err := r.Shard.Decode(decoder); err != nil {
		return err
	}
	var err error
	if r.Key, err = ReadBytes(decoder); err != nil {
		return err
	}
	return decoder.Decode(&r.Payload)
}

// EnvelopeKind selects the request shape; each shape has its own submit method.
type EnvelopeKind int

const (
	EnvelopeRSA EnvelopeKind = iota
	EnvelopeAES
)

func (k EnvelopeKind) String() string {
	if k == EnvelopeAES {
		return "aes"
	}
	return "rsa"
}

var ErrEmptyEnvelope = errors.New("envelope carries no request")

// RequestEnvelope holds exactly one of Rsa or Aes.
type RequestEnvelope struct {
	Rsa *RsaRequest
	Aes *AesRequest
}

func (e RequestEnvelope) Kind() EnvelopeKind {
	if e.Aes != nil {
		return EnvelopeAES
	}
	return EnvelopeRSA
}

func (e RequestEnvelope) Shard() ShardIdentifier {
	switch {
	case e.Aes != nil:
		return e.Aes.Shard
	case e.Rsa != nil:
		return e.Rsa.Shard
	}
	return ShardIdentifier{}
}

func (e RequestEnvelope) validate() error {
	if (e.Rsa == nil) == (e.Aes == nil) {
		return ErrEmptyEnvelope
	}
	return nil
}

// ToHex encodes the selected request and renders it as the single JSON-RPC param.
func (e RequestEnvelope) ToHex() (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}
	if e.Aes != nil {
		return EncodeToHex(*e.Aes)
	}
	return EncodeToHex(*e.Rsa)
}

// EnvelopeFromHex decodes a request param previously produced by ToHex for the given shape.
func EnvelopeFromHex(kind EnvelopeKind, s string) (RequestEnvelope, error) {
	switch kind {
	case EnvelopeRSA:
		var r RsaRequest
		if err := DecodeFromHex(s, &r, "RsaRequest"); err != nil {
			return RequestEnvelope{}, err
		}
		return RequestEnvelope{Rsa: &r}, nil
	case EnvelopeAES:
		var r AesRequest
		if err := DecodeFromHex(s, &r, "AesRequest"); err != nil {
			return RequestEnvelope{}, err
		}
		return RequestEnvelope{Aes: &r}, nil
	}
	return RequestEnvelope{}, fmt.Errorf("unknown envelope kind %d", kind)
}
