package codec

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"math/big"
	"tee/trusted-ops/internal/types"
)

// MaxBytesLength bounds any length-prefixed byte sequence accepted by the decoder.
const MaxBytesLength = 16 * 1024 * 1024

var (
	ErrUnknownTag    = errors.New("unknown variant tag")
	ErrTrailingBytes = errors.New("trailing bytes after value")
	ErrTooLong       = errors.New("length prefix exceeds limit")
)

// Encode serializes v with the binary encoding shared by every wire type.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed encoding %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// MustEncode is Encode for values whose encoding cannot fail (fixed layouts, no maps).
func MustEncode(v interface{}) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode decodes data into target and requires the input to be fully consumed.
// Malformed input never panics; it yields a *types.CodecError naming typeName.
func Decode(data []byte, target interface{}, typeName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &types.CodecError{Type: typeName, Err: fmt.Errorf("malformed input: %v", r)}
		}
	}()

	reader := bytes.NewReader(data)
	decoder := scale.NewDecoder(reader)
	// Fixed-size arrays cannot go through the reflective path of scale.Decoder.
	if decodeable, ok := target.(scale.Decodeable); ok {
		err = decodeable.Decode(*decoder)
	} else {
		err = decoder.Decode(target)
	}
	if err != nil {
		return &types.CodecError{Type: typeName, Err: err}
	}
	if reader.Len() != 0 {
		return &types.CodecError{Type: typeName, Err: fmt.Errorf("%w: %d", ErrTrailingBytes, reader.Len())}
	}
	return nil
}

// ToHex renders bytes the way they travel inside JSON-RPC params: 0x-prefixed lowercase hex.
func ToHex(b []byte) string {
	return hexutil.Encode(b)
}

// FromHex is the inverse of ToHex; the 0x prefix is mandatory.
func FromHex(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, &types.CodecError{Type: "hex", Err: err}
	}
	return b, nil
}

// EncodeToHex encodes v and hex-renders the result.
func EncodeToHex(v interface{}) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return ToHex(b), nil
}

// DecodeFromHex strips the hex transport layer and decodes the binary value.
func DecodeFromHex(s string, target interface{}, typeName string) error {
	b, err := FromHex(s)
	if err != nil {
		return err
	}
	return Decode(b, target, typeName)
}

// WriteBytes writes a compact length prefix followed by b.
func WriteBytes(encoder scale.Encoder, b []byte) error {
	if err := encoder.EncodeUintCompact(*big.NewInt(int64(len(b)))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return encoder.Write(b)
}

// ReadBytes reads a compact-length-prefixed byte sequence, refusing lengths above
// MaxBytesLength. A zero length decodes to nil, so empty and nil sequences are the
// same value once they have been on the wire.
func ReadBytes(decoder scale.Decoder) ([]byte, error) {
	n, err := decoder.DecodeUintCompact()
	if err != nil {
		return nil, err
	}
	if !n.IsUint64() || n.Uint64() > MaxBytesLength {
		return nil, fmt.Errorf("%w: %s", ErrTooLong, n.String())
	}
	if n.Uint64() == 0 {
		return nil, nil
	}
	b := make([]byte, n.Uint64())
	if err := decoder.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadTag reads one variant tag byte and checks it against the number of variants.
func ReadTag(decoder scale.Decoder, variants byte) (byte, error) {
	tag, err := decoder.ReadOneByte()
	if err != nil {
		return 0, err
	}
	if tag >= variants {
		return 0, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
	return tag, nil
}

// WriteBool writes a single 0/1 byte.
func WriteBool(encoder scale.Encoder, v bool) error {
	if v {
		return encoder.PushByte(1)
	}
	return encoder.PushByte(0)
}

// ReadBool reads a single byte and rejects anything other than 0 or 1.
func ReadBool(decoder scale.Decoder) (bool, error) {
	b, err := decoder.ReadOneByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool byte %d", b)
	}
}

// ReadOptionTag reads the presence byte of an Option.
func ReadOptionTag(decoder scale.Decoder) (bool, error) {
	b, err := decoder.ReadOneByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid option tag %d", b)
	}
}

// ReadFixed reads exactly len(out) raw bytes.
func ReadFixed(decoder scale.Decoder, out []byte) error {
	if len(out) == 0 {
		return nil
	}
	return decoder.Read(out)
}
