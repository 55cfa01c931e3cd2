package codec

import (
	"errors"
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"unicode/utf8"
)

// StatusKind enumerates TrustedOperationStatus variants in wire tag order.
type StatusKind byte

const (
	Submitted StatusKind = iota
	Future
	Ready
	Broadcast
	InSidechainBlock
	Retracted
	FinalityTimeout
	Finalized
	Usurped
	Dropped
	Invalid
	TopExecuted

	statusKinds
)

var statusNames = [...]string{
	Submitted:        "Submitted",
	Future:           "Future",
	Ready:            "Ready",
	Broadcast:        "Broadcast",
	InSidechainBlock: "InSidechainBlock",
	Retracted:        "Retracted",
	FinalityTimeout:  "FinalityTimeout",
	Finalized:        "Finalized",
	Usurped:          "Usurped",
	Dropped:          "Dropped",
	Invalid:          "Invalid",
	TopExecuted:      "TopExecuted",
}

func (k StatusKind) String() string {
	if k < statusKinds {
		return statusNames[k]
	}
	return fmt.Sprintf("StatusKind(%d)", byte(k))
}

// IsTerminalFailure reports statuses after which the operation will never be executed.
func (k StatusKind) IsTerminalFailure() bool {
	switch k {
	case Invalid, Dropped, Usurped, FinalityTimeout, Retracted:
		return true
	}
	return false
}

// IsTerminalSuccess reports statuses that prove the operation was included or executed.
func (k StatusKind) IsTerminalSuccess() bool {
	switch k {
	case InSidechainBlock, Finalized, TopExecuted:
		return true
	}
	return false
}

// TrustedOperationStatus is the enclave's pool lifecycle state for one operation.
// BlockHash is only meaningful for InSidechainBlock; Result and ResultOK for TopExecuted.
type TrustedOperationStatus struct {
	Kind      StatusKind
	BlockHash Hash
	Result    []byte
	ResultOK  bool
}

func NewStatus(kind StatusKind) TrustedOperationStatus {
	return TrustedOperationStatus{Kind: kind}
}

func InBlock(hash Hash) TrustedOperationStatus {
	return TrustedOperationStatus{Kind: InSidechainBlock, BlockHash: hash}
}

// Executed builds a TopExecuted status. An empty result is stored as nil, the form it
// decodes to.
func Executed(result []byte, ok bool) TrustedOperationStatus {
	if len(result) == 0 {
		result = nil
	}
	return TrustedOperationStatus{Kind: TopExecuted, Result: result, ResultOK: ok}
}

func (s TrustedOperationStatus) String() string {
	switch s.Kind {
	case InSidechainBlock:
		return fmt.Sprintf("InSidechainBlock(%s)", s.BlockHash.Hex())
	case TopExecuted:
		return fmt.Sprintf("TopExecuted(%d bytes, %t)", len(s.Result), s.ResultOK)
	}
	return s.Kind.String()
}

func (s TrustedOperationStatus) Encode(encoder scale.Encoder) error {
	if s.Kind >= statusKinds {
		return fmt.Errorf("%w: %d", ErrUnknownTag, s.Kind)
	}
	if err := encoder.PushByte(byte(s.Kind)); err != nil {
		return err
	}
	switch s.Kind {
	case InSidechainBlock:
		return encoder.Encode(s.BlockHash)
	case TopExecuted:
		if err := WriteBytes(encoder, s.Result); err != nil {
			return err
		}
		return WriteBool(encoder, s.ResultOK)
	}
	return nil
}

func (s *TrustedOperationStatus) Decode(decoder scale.Decoder) error {
	tag, err := ReadTag(decoder, byte(statusKinds))
	if err != nil {
		return err
	}
	*s = TrustedOperationStatus{Kind: StatusKind(tag)}
	switch s.Kind {
	case InSidechainBlock:
		return s.BlockHash.Decode(decoder)
	case TopExecuted:
		if s.Result, err = ReadBytes(decoder); err != nil {
			return err
		}
		s.ResultOK, err = ReadBool(decoder)
		return err
	}
	return nil
}

// DirectKind enumerates DirectRequestStatus variants in wire tag order.
type DirectKind byte

const (
	StatusOk DirectKind = iota
	StatusInPool
	StatusError

	directKinds
)

func (k DirectKind) String() string {
	switch k {
	case StatusOk:
		return "Ok"
	case StatusInPool:
		return "TrustedOperationStatus"
	case StatusError:
		return "Error"
	}
	return fmt.Sprintf("DirectKind(%d)", byte(k))
}

// DirectRequestStatus is the top-level status of a worker response. Pool and TopHash
// are set only for StatusInPool.
type DirectRequestStatus struct {
	Kind    DirectKind
	Pool    TrustedOperationStatus
	TopHash Hash
}

func OkStatus() DirectRequestStatus {
	return DirectRequestStatus{Kind: StatusOk}
}

func ErrorStatus() DirectRequestStatus {
	return DirectRequestStatus{Kind: StatusError}
}

func InPoolStatus(pool TrustedOperationStatus, topHash Hash) DirectRequestStatus {
	return DirectRequestStatus{Kind: StatusInPool, Pool: pool, TopHash: topHash}
}

func (s DirectRequestStatus) String() string {
	if s.Kind == StatusInPool {
		return fmt.Sprintf("%s(%s, %s)", s.Kind, s.Pool, s.TopHash.Hex())
	}
	return s.Kind.String()
}

func (s DirectRequestStatus) Encode(encoder scale.Encoder) error {
	if s.Kind >= directKinds {
		return fmt.Errorf("%w: %d", ErrUnknownTag, s.Kind)
	}
	if err := encoder.PushByte(byte(s.Kind)); err != nil {
		return err
	}
	if s.Kind != StatusInPool {
		return nil
	}
	if err := encoder.Encode(s.Pool); err != nil {
		return err
	}
	return encoder.Encode(s.TopHash)
}

func (s *DirectRequestStatus) Decode(decoder scale.Decoder) error {
	tag, err := ReadTag(decoder, byte(directKinds))
	if err != nil {
		return err
	}
	*s = DirectRequestStatus{Kind: DirectKind(tag)}
	if s.Kind != StatusInPool {
		return nil
	}
	if err := decoder.Decode(&s.Pool); err != nil {
		return err
	}
	return s.TopHash.Decode(decoder)
}

// RpcReturnValue is the hex-encoded result of every worker RPC method.
type RpcReturnValue struct {
	Value   []byte
	DoWatch bool
	Status  DirectRequestStatus
}

func (v RpcReturnValue) Encode(encoder scale.Encoder) error {
	if err := WriteBytes(encoder, v.Value); err != nil {
		return err
	}
	if err := WriteBool(encoder, v.DoWatch); err != nil {
		return err
	}
	return encoder.Encode(v.Status)
}

func (v *RpcReturnValue) Decode(decoder scale.Decoder) error {
	var err error
	if v.Value, err = ReadBytes(decoder); err != nil {
		return err
	}
	if v.DoWatch, err = ReadBool(decoder); err != nil {
		return err
	}
	return decoder.Decode(&v.Status)
}

// DecodeRpcReturnValue parses the hex result string of a JSON-RPC response.
func DecodeRpcReturnValue(result string) (RpcReturnValue, error) {
	var v RpcReturnValue
	if err := DecodeFromHex(result, &v, "RpcReturnValue"); err != nil {
		return RpcReturnValue{}, err
	}
	return v, nil
}

// DecodeString decodes a length-prefixed UTF-8 string, the form the worker uses for
// error messages and JSON payloads carried in RpcReturnValue.Value.
func DecodeString(b []byte) (string, error) {
	var s Text
	if err := Decode(b, &s, "String"); err != nil {
		return "", err
	}
	return string(s), nil
}

// Text is a length-prefixed string whose length is bounded like any byte sequence.
type Text string

func (s Text) Encode(encoder scale.Encoder) error {
	return WriteBytes(encoder, []byte(s))
}

func (s *Text) Decode(decoder scale.Decoder) error {
	b, err := ReadBytes(decoder)
	if err != nil {
		return err
	}
	if !utf8.Valid(b) {
		return errors.New("string is not valid utf-8")
	}
	*s = Text(b)
	return nil
}
