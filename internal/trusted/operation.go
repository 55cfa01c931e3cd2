package trusted

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	log "github.com/sirupsen/logrus"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/signature"
)

// TrustedCallSigned binds a call to a nonce, an enclave measurement and a shard.
type TrustedCallSigned struct {
	Call      TrustedCall
	Nonce     uint32
	Signature signature.MultiSignature
}

// SignaturePayload is encode(call) || nonce (u32 LE) || mrenclave || shard.
func SignaturePayload(call TrustedCall, nonce uint32, mrenclave codec.Hash, shard codec.ShardIdentifier) ([]byte, error) {
	encoded, err := codec.Encode(call)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(encoded)+4+2*codec.HashLength)
	payload = append(payload, encoded...)
	payload = binary.LittleEndian.AppendUint32(payload, nonce)
	payload = append(payload, mrenclave[:]...)
	return append(payload, shard[:]...), nil
}

// Build signs call for the given nonce, mrenclave and shard. Stale inputs are not detected
// here; the enclave rejects them later with an Invalid status.
func Build(call TrustedCall, nonce uint32, mrenclave codec.Hash, shard codec.ShardIdentifier, signer signature.Signer) (TrustedCallSigned, error) {
	payload, err := SignaturePayload(call, nonce, mrenclave, shard)
	if err != nil {
		return TrustedCallSigned{}, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return TrustedCallSigned{}, fmt.Errorf("failed signing %s: %w", call.Kind(), err)
	}
	log.Debugf("signed %s with nonce %d (%d byte payload)", call.Kind(), nonce, len(payload))
	return TrustedCallSigned{Call: call, Nonce: nonce, Signature: sig}, nil
}

// Verify recomputes the payload and checks it against the call's sender.
func (s TrustedCallSigned) Verify(mrenclave codec.Hash, shard codec.ShardIdentifier) bool {
	payload, err := SignaturePayload(s.Call, s.Nonce, mrenclave, shard)
	if err != nil {
		return false
	}
	return signature.Verify(payload, s.Signature, s.Call.Sender())
}

func (s TrustedCallSigned) Encode(encoder scale.Encoder) error {
	if err := encoder.Encode(s.Call); err != nil {
		return err
	}
	if err := encoder.Encode(s.Nonce); err != nil {
		return err
	}
	return encoder.Encode(s.Signature)
}

func (s *TrustedCallSigned) Decode(decoder scale.Decoder) error {
	if err := decoder.Decode(&s.Call); err != nil {
		return err
	}
	if err := decoder.Decode(&s.Nonce); err != nil {
		return err
	}
	return decoder.Decode(&s.Signature)
}

// OperationKind is the TrustedOperation variant tag.
type OperationKind byte

const (
	IndirectCallKind OperationKind = iota
	DirectCallKind
	GetKind

	operationKindCount
)

func (k OperationKind) String() string {
	switch k {
	case IndirectCallKind:
		return "indirect_call"
	case DirectCallKind:
		return "direct_call"
	case GetKind:
		return "get"
	}
	return fmt.Sprintf("OperationKind(%d)", byte(k))
}

var ErrNotACall = errors.New("operation does not carry a call")

// TrustedOperation is what gets shielded and submitted to the enclave.
type TrustedOperation struct {
	kind   OperationKind
	call   *TrustedCallSigned
	getter *Getter
}

func DirectCall(signed TrustedCallSigned) TrustedOperation {
	return TrustedOperation{kind: DirectCallKind, call: &signed}
}

func IndirectCall(signed TrustedCallSigned) TrustedOperation {
	return TrustedOperation{kind: IndirectCallKind, call: &signed}
}

func Get(getter Getter) TrustedOperation {
	return TrustedOperation{kind: GetKind, getter: &getter}
}

func (op TrustedOperation) Kind() OperationKind { return op.kind }

// Call returns the signed call of a direct or indirect operation.
func (op TrustedOperation) Call() (TrustedCallSigned, error) {
	if op.call == nil {
		return TrustedCallSigned{}, ErrNotACall
	}
	return *op.call, nil
}

// Getter returns the getter of a get operation, nil otherwise.
func (op TrustedOperation) Getter() *Getter {
	if op.getter == nil {
		return nil
	}
	g := *op.getter
	return &g
}

// Hash is the top hash the enclave reports in status updates for this operation.
func (op TrustedOperation) Hash() (codec.Hash, error) {
	encoded, err := codec.Encode(op)
	if err != nil {
		return codec.Hash{}, err
	}
	return codec.Blake2_256(encoded), nil
}

func (op TrustedOperation) Encode(encoder scale.Encoder) error {
	if err := encoder.PushByte(byte(op.kind)); err != nil {
		return err
	}
	switch op.kind {
	case IndirectCallKind, DirectCallKind:
		if op.call == nil {
			return ErrNotACall
		}
		return encoder.Encode(*op.call)
	case GetKind:
		if op.getter == nil {
			return errEmptyGetter
		}
		return encoder.Encode(*op.getter)
	}
	return fmt.Errorf("%w: operation %d", codec.ErrUnknownTag, op.kind)
}

func (op *TrustedOperation) Decode(decoder scale.Decoder) error {
	tag, err := codec.ReadTag(decoder, byte(operationKindCount))
	if err != nil {
		return err
	}
	kind := OperationKind(tag)
	if kind == GetKind {
		var g Getter
		if err := decoder.Decode(&g); err != nil {
			return err
		}
		*op = Get(g)
		return nil
	}
	var s TrustedCallSigned
	if err := decoder.Decode(&s); err != nil {
		return err
	}
	*op = TrustedOperation{kind: kind, call: &s}
	return nil
}

// DecodeOperation parses an unshielded operation.
func DecodeOperation(b []byte) (TrustedOperation, error) {
	var op TrustedOperation
	if err := codec.Decode(b, &op, "TrustedOperation"); err != nil {
		return TrustedOperation{}, err
	}
	return op, nil
}
