package trusted

import (
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"math/big"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/identity"
)

// CallKind is the TrustedCall variant tag.
type CallKind byte

const (
	LinkIdentity CallKind = iota
	DeactivateIdentity
	ActivateIdentity
	RequestVC
	SetIdentityNetworks
	LinkIdentityCallback
	RequestVCCallback
	HandleImpError
	HandleVcmpError
	BalanceSetBalance
	BalanceTransfer
	BalanceUnshield
	BalanceShield

	callKindCount
)

var callNames = [...]string{
	"link_identity", "deactivate_identity", "activate_identity", "request_vc",
	"set_identity_networks", "link_identity_callback", "request_vc_callback",
	"handle_imp_error", "handle_vcmp_error", "balance_set_balance",
	"balance_transfer", "balance_unshield", "balance_shield",
}

func (k CallKind) String() string {
	if k < callKindCount {
		return callNames[k]
	}
	return fmt.Sprintf("CallKind(%d)", byte(k))
}

// Privileged calls may only be issued by the enclave signer.
func (k CallKind) Privileged() bool {
	switch k {
	case LinkIdentityCallback, RequestVCCallback, HandleImpError, HandleVcmpError, BalanceShield:
		return true
	}
	return false
}

// TrustedCall is a state-changing request executed inside the enclave. Values are built
// through the constructors and not modified afterwards.
type TrustedCall struct {
	kind     CallKind
	sender   identity.Identity
	who      *identity.Identity
	identity identity.Identity
	networks identity.Networks
	opaque   []byte // validation data, assertion or error detail
	extra    []byte // vc payload
	aesKey   *codec.RequestAesKey
	hash     codec.Hash
	amounts  [2]*big.Int
	shard    codec.ShardIdentifier
}

func whoPtr(who identity.Identity) *identity.Identity {
	return &who
}

func copyKey(key *codec.RequestAesKey) *codec.RequestAesKey {
	if key == nil {
		return nil
	}
	k := *key
	return &k
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func NewLinkIdentity(signer, who, id identity.Identity, validationData []byte, networks identity.Networks, aesKey *codec.RequestAesKey, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: LinkIdentity, sender: signer, who: whoPtr(who), identity: id, opaque: copyBytes(validationData), networks: append(identity.Networks(nil), networks...), aesKey: copyKey(aesKey), hash: hash}
}

func NewDeactivateIdentity(signer, who, id identity.Identity, aesKey *codec.RequestAesKey, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: DeactivateIdentity, sender: signer, who: whoPtr(who), identity: id, aesKey: copyKey(aesKey), hash: hash}
}

func NewActivateIdentity(signer, who, id identity.Identity, aesKey *codec.RequestAesKey, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: ActivateIdentity, sender: signer, who: whoPtr(who), identity: id, aesKey: copyKey(aesKey), hash: hash}
}

func NewRequestVC(signer, who identity.Identity, assertion []byte, aesKey *codec.RequestAesKey, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: RequestVC, sender: signer, who: whoPtr(who), opaque: copyBytes(assertion), aesKey: copyKey(aesKey), hash: hash}
}

func NewSetIdentityNetworks(signer, who, id identity.Identity, networks identity.Networks, aesKey *codec.RequestAesKey, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: SetIdentityNetworks, sender: signer, who: whoPtr(who), identity: id, networks: append(identity.Networks(nil), networks...), aesKey: copyKey(aesKey), hash: hash}
}

func NewLinkIdentityCallback(signer, who, id identity.Identity, networks identity.Networks, aesKey *codec.RequestAesKey, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: LinkIdentityCallback, sender: signer, who: whoPtr(who), identity: id, networks: append(identity.Networks(nil), networks...), aesKey: copyKey(aesKey), hash: hash}
}

func NewRequestVCCallback(signer, who identity.Identity, assertion, vcPayload []byte, aesKey *codec.RequestAesKey, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: RequestVCCallback, sender: signer, who: whoPtr(who), opaque: copyBytes(assertion), extra: copyBytes(vcPayload), aesKey: copyKey(aesKey), hash: hash}
}

// NewHandleImpError reports an identity management failure; who may be nil.
func NewHandleImpError(signer identity.Identity, who *identity.Identity, detail []byte, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: HandleImpError, sender: signer, who: copyWho(who), opaque: copyBytes(detail), hash: hash}
}

// NewHandleVcmpError reports a credential management failure; who may be nil.
func NewHandleVcmpError(signer identity.Identity, who *identity.Identity, detail []byte, hash codec.Hash) TrustedCall {
	return TrustedCall{kind: HandleVcmpError, sender: signer, who: copyWho(who), opaque: copyBytes(detail), hash: hash}
}

func copyWho(who *identity.Identity) *identity.Identity {
	if who == nil {
		return nil
	}
	return whoPtr(*who)
}

func NewBalanceSetBalance(signer, who identity.Identity, free, reserved *big.Int) TrustedCall {
	return TrustedCall{kind: BalanceSetBalance, sender: signer, who: whoPtr(who), amounts: [2]*big.Int{copyInt(free), copyInt(reserved)}}
}

func NewBalanceTransfer(from, to identity.Identity, amount *big.Int) TrustedCall {
	return TrustedCall{kind: BalanceTransfer, sender: from, who: whoPtr(to), amounts: [2]*big.Int{copyInt(amount)}}
}

func NewBalanceUnshield(from, beneficiary identity.Identity, amount *big.Int, shard codec.ShardIdentifier) TrustedCall {
	return TrustedCall{kind: BalanceUnshield, sender: from, who: whoPtr(beneficiary), amounts: [2]*big.Int{copyInt(amount)}, shard: shard}
}

func NewBalanceShield(enclaveSigner, to identity.Identity, amount *big.Int) TrustedCall {
	return TrustedCall{kind: BalanceShield, sender: enclaveSigner, who: whoPtr(to), amounts: [2]*big.Int{copyInt(amount)}}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func (c TrustedCall) Kind() CallKind { return c.kind }

// Sender is the identity whose signature authorizes the call.
func (c TrustedCall) Sender() identity.Identity { return c.sender }

// Who is the subject of the call (who, to or beneficiary); nil when absent.
func (c TrustedCall) Who() *identity.Identity { return copyWho(c.who) }

func (c TrustedCall) Identity() identity.Identity { return c.identity }

func (c TrustedCall) Networks() identity.Networks {
	return append(identity.Networks(nil), c.networks...)
}

func (c TrustedCall) AesKey() *codec.RequestAesKey { return copyKey(c.aesKey) }

func (c TrustedCall) BindingHash() codec.Hash { return c.hash }

// Amount is the transferred, shielded or free balance value.
func (c TrustedCall) Amount() *big.Int { return copyInt(c.amounts[0]) }

// Reserved is the reserved balance of balance_set_balance.
func (c TrustedCall) Reserved() *big.Int { return copyInt(c.amounts[1]) }

func (c TrustedCall) String() string {
	return fmt.Sprintf("%s(sender=%s)", c.kind, c.sender)
}

func (c TrustedCall) Encode(encoder scale.Encoder) error {
	if c.kind >= callKindCount {
		return fmt.Errorf("%w: call %d", codec.ErrUnknownTag, c.kind)
	}
	if err := encoder.PushByte(byte(c.kind)); err != nil {
		return err
	}
	if err := encoder.Encode(c.sender); err != nil {
		return err
	}

	switch c.kind {
	case HandleImpError, HandleVcmpError:
		if err := encodeOptionalIdentity(encoder, c.who); err != nil {
			return err
		}
		if err := codec.WriteBytes(encoder, c.opaque); err != nil {
			return err
		}
		return encoder.Encode(c.hash)
	}

	if c.who == nil {
		return fmt.Errorf("%s requires a subject identity", c.kind)
	}
	if err := encoder.Encode(*c.who); err != nil {
		return err
	}

	switch c.kind {
	case BalanceSetBalance:
		if err := encodeU128(encoder, c.amounts[0]); err != nil {
			return err
		}
		return encodeU128(encoder, c.amounts[1])
	case BalanceTransfer, BalanceShield:
		return encodeU128(encoder, c.amounts[0])
	case BalanceUnshield:
		if err := encodeU128(encoder, c.amounts[0]); err != nil {
			return err
		}
		return encoder.Encode(c.shard)
	}

	switch c.kind {
	case LinkIdentity, DeactivateIdentity, ActivateIdentity, SetIdentityNetworks, LinkIdentityCallback:
		if err := encoder.Encode(c.identity); err != nil {
			return err
		}
	}
	switch c.kind {
	case LinkIdentity:
		if err := codec.WriteBytes(encoder, c.opaque); err != nil {
			return err
		}
		if err := encoder.Encode(c.networks); err != nil {
			return err
		}
	case SetIdentityNetworks, LinkIdentityCallback:
		if err := encoder.Encode(c.networks); err != nil {
			return err
		}
	case RequestVC:
		if err := codec.WriteBytes(encoder, c.opaque); err != nil {
			return err
		}
	case RequestVCCallback:
		if err := codec.WriteBytes(encoder, c.opaque); err != nil {
			return err
		}
		if err := codec.WriteBytes(encoder, c.extra); err != nil {
			return err
		}
	}
	if err := encodeOptionalKey(encoder, c.aesKey); err != nil {
		return err
	}
	return encoder.Encode(c.hash)
}

func (c *TrustedCall) Decode(decoder scale.Decoder) error {
	tag, err := codec.ReadTag(decoder, byte(callKindCount))
	if err != nil {
		return err
	}
	out := TrustedCall{kind: CallKind(tag)}
	if err := decoder.Decode(&out.sender); err != nil {
		return err
	}

	switch out.kind {
	case HandleImpError, HandleVcmpError:
		if out.who, err = decodeOptionalIdentity(decoder); err != nil {
			return err
		}
		if out.opaque, err = codec.ReadBytes(decoder); err != nil {
			return err
		}
		if err := out.hash.Decode(decoder); err != nil {
			return err
		}
		*c = out
		return nil
	}

	var who identity.Identity
	if err := decoder.Decode(&who); err != nil {
		return err
	}
	out.who = &who

	switch out.kind {
	case BalanceSetBalance:
		if out.amounts[0], err = decodeU128(decoder); err != nil {
			return err
		}
		if out.amounts[1], err = decodeU128(decoder); err != nil {
			return err
		}
		*c = out
		return nil
	case BalanceTransfer, BalanceShield, BalanceUnshield:
		if out.amounts[0], err = decodeU128(decoder); err != nil {
			return err
		}
		if out.kind == BalanceUnshield {
			if err := out.shard.Decode(decoder); err != nil {
				return err
			}
		}
		*c = out
		return nil
	}

	switch out.kind {
	case LinkIdentity, DeactivateIdentity, ActivateIdentity, SetIdentityNetworks, LinkIdentityCallback:
		if err := decoder.Decode(&out.identity); err != nil {
			return err
		}
	}
	switch out.kind {
	case LinkIdentity:
		if out.opaque, err = codec.ReadBytes(decoder); err != nil {
			return err
		}
		if err := decoder.Decode(&out.networks); err != nil {
			return err
		}
	case SetIdentityNetworks, LinkIdentityCallback:
		if err := decoder.Decode(&out.networks); err != nil {
			return err
		}
	case RequestVC:
		if out.opaque, err = codec.ReadBytes(decoder); err != nil {
			return err
		}
	case RequestVCCallback:
		if out.opaque, err = codec.ReadBytes(decoder); err != nil {
			return err
		}
		if out.extra, err = codec.ReadBytes(decoder); err != nil {
			return err
		}
	}
	if out.aesKey, err = decodeOptionalKey(decoder); err != nil {
		return err
	}
	if err := out.hash.Decode(decoder); err != nil {
		return err
	}
	*c = out
	return nil
}

func encodeOptionalIdentity(encoder scale.Encoder, id *identity.Identity) error {
	if id == nil {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	return encoder.Encode(*id)
}

func decodeOptionalIdentity(decoder scale.Decoder) (*identity.Identity, error) {
	present, err := codec.ReadOptionTag(decoder)
	if err != nil || !present {
		return nil, err
	}
	var id identity.Identity
	if err := decoder.Decode(&id); err != nil {
		return nil, err
	}
	return &id, nil
}

func encodeOptionalKey(encoder scale.Encoder, key *codec.RequestAesKey) error {
	if key == nil {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	return encoder.Encode(*key)
}

func decodeOptionalKey(decoder scale.Decoder) (*codec.RequestAesKey, error) {
	present, err := codec.ReadOptionTag(decoder)
	if err != nil || !present {
		return nil, err
	}
	var key codec.RequestAesKey
	if err := key.Decode(decoder); err != nil {
		return nil, err
	}
	return &key, nil
}

func encodeU128(encoder scale.Encoder, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return fmt.Errorf("balance %s does not fit in u128", v)
	}
	return encoder.Encode(gsrpc.NewU128(*v))
}

func decodeU128(decoder scale.Decoder) (*big.Int, error) {
	var v gsrpc.U128
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	if v.Int == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v.Int), nil
}
