package bus

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vinayprograms/drainkit/errors"
)

// Codec converts messages to and from transport payloads.
type Codec[M any] interface {
	Encode(msg M) ([]byte, error)
	Decode(data []byte) (M, error)

	// Name returns the codec identifier.
	Name() string
}

// MsgpackCodec encodes messages as MessagePack.
type MsgpackCodec[M any] struct{}

func (MsgpackCodec[M]) Encode(msg M) ([]byte, error) {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCodec, "msgpack encode")
	}
	return data, nil
}

func (MsgpackCodec[M]) Decode(data []byte) (M, error) {
	var msg M
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return msg, errors.WrapWithCode(err, errors.ErrCodeCodec, "msgpack decode")
	}
	return msg, nil
}

func (MsgpackCodec[M]) Name() string { return "msgpack" }

// envelope tags mirrored payloads with the publishing process so a relay can
// skip its own messages.
type envelope struct {
	Origin  string `msgpack:"origin"`
	Payload []byte `msgpack:"payload"`
}

func encodeEnvelope(origin string, payload []byte) ([]byte, error) {
	data, err := msgpack.Marshal(envelope{Origin: origin, Payload: payload})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCodec, "encode envelope")
	}
	return data, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return env, errors.WrapWithCode(err, errors.ErrCodeCodec, "decode envelope")
	}
	return env, nil
}
