// Package serializer converts cache payloads to and from their wire
// representation for the remote tier. JSON is the default codec; MessagePack
// is available for callers that want a denser encoding.
package serializer

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"tiercache/errors"
)

// Codec encodes and decodes cache values for remote storage.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Name() string
}

// JSONCodec encodes values as JSON. This is the default codec: any value that
// survives a structural JSON round-trip is cacheable.
type JSONCodec struct{}

// NewJSON creates a JSON codec
func NewJSON() *JSONCodec {
	return &JSONCodec{}
}

func (c *JSONCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.SerializationError("value is not JSON-serializable", err)
	}
	return data, nil
}

func (c *JSONCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.SerializationError("stored payload is not valid JSON", err)
	}
	return nil
}

func (c *JSONCodec) Name() string { return "json" }

// MsgPackCodec encodes values as MessagePack.
type MsgPackCodec struct{}

// NewMsgPack creates a MessagePack codec
func NewMsgPack() *MsgPackCodec {
	return &MsgPackCodec{}
}

func (c *MsgPackCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.SerializationError("value is not msgpack-serializable", err)
	}
	return data, nil
}

func (c *MsgPackCodec) Unmarshal(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.SerializationError("stored payload is not valid msgpack", err)
	}
	return nil
}

func (c *MsgPackCodec) Name() string { return "msgpack" }
