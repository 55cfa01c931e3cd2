package codec

import (
	"bytes"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tee/trusted-ops/internal/types"
	"testing"
)

func testHash(b byte) Hash {
	var h Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestStatusRoundTrip(t *testing.T) {
	var statuses []TrustedOperationStatus
	for k := Submitted; k < statusKinds; k++ {
		switch k {
		case InSidechainBlock:
			statuses = append(statuses, InBlock(testHash(0xab)))
		case TopExecuted:
			statuses = append(statuses, Executed([]byte{1, 2, 3}, true), Executed(nil, false))
		default:
			statuses = append(statuses, NewStatus(k))
		}
	}

	for _, s := range statuses {
		t.Run(s.String(), func(t *testing.T) {
			encoded, err := Encode(s)
			require.NoError(t, err)
			assert.Equal(t, byte(s.Kind), encoded[0])

			var decoded TrustedOperationStatus
			require.NoError(t, Decode(encoded, &decoded, "TrustedOperationStatus"))
			assert.Equal(t, s, decoded)

			direct := InPoolStatus(s, testHash(0x11))
			encoded, err = Encode(direct)
			require.NoError(t, err)
			var decodedDirect DirectRequestStatus
			require.NoError(t, Decode(encoded, &decodedDirect, "DirectRequestStatus"))
			assert.Equal(t, direct, decodedDirect)
		})
	}
}

func TestDirectStatusRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		status DirectRequestStatus
		wire   []byte
	}{
		{name: "ok", status: OkStatus(), wire: []byte{0}},
		{name: "error", status: ErrorStatus(), wire: []byte{2}},
		{
			name:   "submitted",
			status: InPoolStatus(NewStatus(Submitted), Hash{}),
			wire:   append([]byte{1, 0}, make([]byte, 32)...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.wire, encoded)

			var decoded DirectRequestStatus
			require.NoError(t, Decode(encoded, &decoded, "DirectRequestStatus"))
			assert.Equal(t, tt.status, decoded)
		})
	}
}

func TestStatusClassification(t *testing.T) {
	failures := map[StatusKind]bool{Invalid: true, Dropped: true, Usurped: true, FinalityTimeout: true, Retracted: true}
	successes := map[StatusKind]bool{InSidechainBlock: true, Finalized: true, TopExecuted: true}

	for k := Submitted; k < statusKinds; k++ {
		assert.Equal(t, failures[k], k.IsTerminalFailure(), k.String())
		assert.Equal(t, successes[k], k.IsTerminalSuccess(), k.String())
		assert.False(t, k.IsTerminalFailure() && k.IsTerminalSuccess(), k.String())
	}
}

func TestRpcReturnValueHexRoundTrip(t *testing.T) {
	value := RpcReturnValue{
		Value:   []byte("hello"),
		DoWatch: true,
		Status:  InPoolStatus(InBlock(testHash(0x42)), testHash(0x43)),
	}

	hex, err := EncodeToHex(value)
	require.NoError(t, err)
	assert.Equal(t, "0x", hex[:2])

	decoded, err := DecodeRpcReturnValue(hex)
	require.NoError(t, err)
	assert.Equal(t, value, decoded)
}

func TestEnvelopeHexRoundTrip(t *testing.T) {
	shard := testHash(0x07)
	tests := []struct {
		name     string
		envelope RequestEnvelope
	}{
		{
			name:     "rsa",
			envelope: RequestEnvelope{Rsa: &RsaRequest{Shard: shard, Payload: bytes.Repeat([]byte{0xee}, 384)}},
		},
		{
			name: "aes",
			envelope: RequestEnvelope{Aes: &AesRequest{
				Shard: shard,
				Key:   bytes.Repeat([]byte{0x01}, 384),
				Payload: AesOutput{
					Ciphertext: []byte("sealed"),
					Aad:        []byte("aad"),
					Nonce:      [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
				},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hex, err := tt.envelope.ToHex()
			require.NoError(t, err)

			decoded, err := EnvelopeFromHex(tt.envelope.Kind(), hex)
			require.NoError(t, err)
			assert.Equal(t, tt.envelope, decoded)
			assert.Equal(t, shard, decoded.Shard())
		})
	}
}

func TestEnvelopeRequiresExactlyOneShape(t *testing.T) {
	_, err := RequestEnvelope{}.ToHex()
	assert.ErrorIs(t, err, ErrEmptyEnvelope)

	_, err = RequestEnvelope{Rsa: &RsaRequest{}, Aes: &AesRequest{}}.ToHex()
	assert.ErrorIs(t, err, ErrEmptyEnvelope)
}

func TestDecodeMalformedInput(t *testing.T) {
	valid := MustEncode(RpcReturnValue{Value: []byte{9, 9}, Status: InPoolStatus(InBlock(testHash(1)), testHash(2))})

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "empty", input: nil},
		{name: "truncated", input: valid[:len(valid)-5]},
		{name: "trailing", input: append(append([]byte{}, valid...), 0), wantErr: ErrTrailingBytes},
		{name: "unknown direct tag", input: []byte{0, 0, 7}, wantErr: ErrUnknownTag},
		{name: "unknown pool tag", input: append([]byte{0, 0, 1, 12}, make([]byte, 32)...), wantErr: ErrUnknownTag},
		{name: "bad bool", input: []byte{0, 2, 0}},
		{name: "oversized length", input: []byte{0x03, 0xff, 0xff, 0xff, 0xff}, wantErr: ErrTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v RpcReturnValue
			err := Decode(tt.input, &v, "RpcReturnValue")
			require.Error(t, err)

			var codecErr *types.CodecError
			require.True(t, errors.As(err, &codecErr))
			assert.Equal(t, "RpcReturnValue", codecErr.Type)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFromHexRequiresPrefix(t *testing.T) {
	_, err := FromHex("abcd")
	var codecErr *types.CodecError
	assert.True(t, errors.As(err, &codecErr))

	b, err := FromHex("0xabcd")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, b)
}

func TestShardEncodings(t *testing.T) {
	shard := testHash(0x5a)

	fromB58, err := ShardFromBase58(shard.Base58())
	require.NoError(t, err)
	assert.Equal(t, shard, fromB58)

	parsed, err := ParseShard(shard.Hex())
	require.NoError(t, err)
	assert.Equal(t, shard, parsed)

	parsed, err = ParseShard(shard.Base58())
	require.NoError(t, err)
	assert.Equal(t, shard, parsed)

	_, err = ShardFromBase58("")
	assert.Error(t, err)
	_, err = HashFromHex("0x0102")
	assert.Error(t, err)
}

func TestDecodeString(t *testing.T) {
	encoded := MustEncode("stale nonce")
	s, err := DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "stale nonce", s)
}

func TestDecodeFixedSizeValues(t *testing.T) {
	h := testHash(0x5a)

	var hash Hash
	require.NoError(t, Decode(h[:], &hash, "H256"))
	assert.Equal(t, h, hash)

	var key RequestAesKey
	raw := bytes.Repeat([]byte{0x33}, AesKeyLength)
	require.NoError(t, Decode(raw, &key, "RequestAesKey"))
	assert.Equal(t, raw, key[:])

	err := Decode(h[:31], &hash, "H256")
	var codecErr *types.CodecError
	assert.True(t, errors.As(err, &codecErr))

	err = Decode(append(h[:], 0), &hash, "H256")
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecodeInPoolBlockStatus(t *testing.T) {
	h := testHash(0x9c)
	status := InPoolStatus(InBlock(h), h)

	encoded, err := Encode(RpcReturnValue{Status: status})
	require.NoError(t, err)

	var decoded RpcReturnValue
	require.NoError(t, Decode(encoded, &decoded, "RpcReturnValue"))
	assert.Equal(t, status, decoded.Status)
	assert.Equal(t, h, decoded.Status.Pool.BlockHash)
	assert.Equal(t, h, decoded.Status.TopHash)

	var request RsaRequest
	encoded, err = Encode(RsaRequest{Shard: h, Payload: []byte{1}})
	require.NoError(t, err)
	require.NoError(t, Decode(encoded, &request, "RsaRequest"))
	assert.Equal(t, h, request.Shard)
}

func TestEmptyBytesDecodeToNil(t *testing.T) {
	for _, s := range []TrustedOperationStatus{Executed([]byte{}, true), Executed(nil, true)} {
		encoded, err := Encode(s)
		require.NoError(t, err)

		var decoded TrustedOperationStatus
		require.NoError(t, Decode(encoded, &decoded, "TrustedOperationStatus"))
		assert.Equal(t, s, decoded)
		assert.Nil(t, decoded.Result)
	}

	encoded, err := Encode(AesOutput{Ciphertext: []byte{}, Aad: []byte{}})
	require.NoError(t, err)
	var sealed AesOutput
	require.NoError(t, Decode(encoded, &sealed, "AesOutput"))
	assert.Nil(t, sealed.Ciphertext)
	assert.Nil(t, sealed.Aad)
}
