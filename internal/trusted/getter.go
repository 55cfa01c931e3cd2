package trusted

import (
	"errors"
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
	"tee/trusted-ops/internal/signature"
)

// TrustedGetterKind is the TrustedGetter variant tag.
type TrustedGetterKind byte

const (
	FreeBalance TrustedGetterKind = iota
	ReservedBalance
	Nonce
	IDGraphGetter

	trustedGetterCount
)

var trustedGetterNames = [...]string{"free_balance", "reserved_balance", "nonce", "id_graph"}

func (k TrustedGetterKind) String() string {
	if k < trustedGetterCount {
		return trustedGetterNames[k]
	}
	return fmt.Sprintf("TrustedGetterKind(%d)", byte(k))
}

// ParseTrustedGetterKind resolves a getter by its wire name.
func ParseTrustedGetterKind(name string) (TrustedGetterKind, error) {
	for i, n := range trustedGetterNames {
		if n == name {
			return TrustedGetterKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trusted getter %q", name)
}

// TrustedGetter reads private state of Who; it must be signed by Who.
type TrustedGetter struct {
	Kind TrustedGetterKind
	Who  identity.Identity
}

func (g TrustedGetter) Encode(encoder scale.Encoder) error {
	if g.Kind >= trustedGetterCount {
		return fmt.Errorf("%w: trusted getter %d", codec.ErrUnknownTag, g.Kind)
	}
	if err := encoder.PushByte(byte(g.Kind)); err != nil {
		return err
	}
	return encoder.Encode(g.Who)
}

func (g *TrustedGetter) Decode(decoder scale.Decoder) error {
	tag, err := codec.ReadTag(decoder, byte(trustedGetterCount))
	if err != nil {
		return err
	}
	g.Kind = TrustedGetterKind(tag)
	return decoder.Decode(&g.Who)
}

// TrustedGetterSigned carries the signature of Who over the encoded getter.
type TrustedGetterSigned struct {
	Getter    TrustedGetter
	Signature signature.MultiSignature
}

// SignGetter signs the encoded getter.
func SignGetter(getter TrustedGetter, signer signature.Signer) (TrustedGetterSigned, error) {
	payload, err := codec.Encode(getter)
	if err != nil {
		return TrustedGetterSigned{}, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return TrustedGetterSigned{}, fmt.Errorf("failed signing getter: %w", err)
	}
	return TrustedGetterSigned{Getter: getter, Signature: sig}, nil
}

func (g TrustedGetterSigned) Verify() bool {
	payload, err := codec.Encode(g.Getter)
	if err != nil {
		return false
	}
	return signature.Verify(payload, g.Signature, g.Getter.Who)
}

func (g TrustedGetterSigned) Encode(encoder scale.Encoder) error {
	if err := encoder.Encode(g.Getter); err != nil {
		return err
	}
	return encoder.Encode(g.Signature)
}

func (g *TrustedGetterSigned) Decode(decoder scale.Decoder) error {
	if err := decoder.Decode(&g.Getter); err != nil {
		return err
	}
	return decoder.Decode(&g.Signature)
}

// PublicGetterKind is the PublicGetter variant tag.
type PublicGetterKind byte

const (
	SomeValue PublicGetterKind = iota
	PublicNonce

	publicGetterCount
)

// PublicGetter reads state that needs no authorization. Who is only used by PublicNonce.
type PublicGetter struct {
	Kind PublicGetterKind
	Who  identity.Identity
}

func (g PublicGetter) Encode(encoder scale.Encoder) error {
	if g.Kind >= publicGetterCount {
		return fmt.Errorf("%w: public getter %d", codec.ErrUnknownTag, g.Kind)
	}
	if err := encoder.PushByte(byte(g.Kind)); err != nil {
		return err
	}
	if g.Kind == PublicNonce {
		return encoder.Encode(g.Who)
	}
	return nil
}

func (g *PublicGetter) Decode(decoder scale.Decoder) error {
	tag, err := codec.ReadTag(decoder, byte(publicGetterCount))
	if err != nil {
		return err
	}
	*g = PublicGetter{Kind: PublicGetterKind(tag)}
	if g.Kind == PublicNonce {
		return decoder.Decode(&g.Who)
	}
	return nil
}

var errEmptyGetter = errors.New("getter must be either public or trusted")

// Getter is either a public getter or a signed trusted getter.
type Getter struct {
	Public  *PublicGetter
	Trusted *TrustedGetterSigned
}

func PublicGet(g PublicGetter) Getter {
	return Getter{Public: &g}
}

func TrustedGet(g TrustedGetterSigned) Getter {
	return Getter{Trusted: &g}
}

func (g Getter) Encode(encoder scale.Encoder) error {
	switch {
	case g.Public != nil && g.Trusted == nil:
		if err := encoder.PushByte(0); err != nil {
			return err
		}
		return encoder.Encode(*g.Public)
	case g.Trusted != nil && g.Public == nil:
		if err := encoder.PushByte(1); err != nil {
			return err
		}
		return encoder.Encode(*g.Trusted)
	}
	return errEmptyGetter
}

func (g *Getter) Decode(decoder scale.Decoder) error {
	tag, err := codec.ReadTag(decoder, 2)
	if err != nil {
		return err
	}
	if tag == 0 {
		var p PublicGetter
		if err := decoder.Decode(&p); err != nil {
			return err
		}
		*g = Getter{Public: &p}
		return nil
	}
	var s TrustedGetterSigned
	if err := decoder.Decode(&s); err != nil {
		return err
	}
	*g = Getter{Trusted: &s}
	return nil
}
