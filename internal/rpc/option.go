package rpc

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"tee/trusted-ops/internal/codec"
)

type optionalBytes struct {
	value []byte
}

// SomeBytes wraps a getter result for encoding.
func SomeBytes(b []byte) []byte {
	return codec.MustEncode(optionalBytes{value: b})
}

func (o optionalBytes) Encode(encoder scale.Encoder) error {
	if o.value == nil {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	return codec.WriteBytes(encoder, o.value)
}

func (o *optionalBytes) Decode(decoder scale.Decoder) error {
	present, err := codec.ReadOptionTag(decoder)
	if err != nil || !present {
		o.value = nil
		return err
	}
	o.value, err = codec.ReadBytes(decoder)
	if err == nil && o.value == nil {
		o.value = []byte{}
	}
	return err
}
