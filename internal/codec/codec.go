// Package codec serializes entity bodies, snapshots and journal payloads.
//
// Encoded data starts with a header: a magic string, a format version and
// the id of the serializer that wrote the payload. Decode reads the header,
// so data written with one serializer stays readable after the configured
// serializer changes.
package codec

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
)

// Codec is a serializer.
type Codec interface {
	// Name is the configuration name of the serializer.
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

const (
	magic   = "\xffPRV"
	version = byte(1)

	idMsgPack = byte(1)
	idBSON    = byte(2)

	headerLen = len(magic) + 2
)

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

type bsonCodec struct{}

func (bsonCodec) Name() string { return "bson" }

func (bsonCodec) Marshal(v any) ([]byte, error) { return bson.Marshal(v) }

func (bsonCodec) Unmarshal(data []byte, v any) error { return bson.Unmarshal(data, v) }

var (
	// MsgPack is the default serializer.
	MsgPack Codec = msgpackCodec{}

	// BSON serializes documents with the MongoDB driver. Top-level values
	// must be structs or maps.
	BSON Codec = bsonCodec{}
)

// Names lists the accepted serializer names.
func Names() []string {
	return []string{MsgPack.Name(), BSON.Name()}
}

// Lookup returns the codec configured under name.
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack":
		return MsgPack, nil
	case "bson":
		return BSON, nil
	default:
		return nil, fmt.Errorf("unsupported serializer: %s", name)
	}
}

func idFor(c Codec) (byte, error) {
	switch c.Name() {
	case "msgpack":
		return idMsgPack, nil
	case "bson":
		return idBSON, nil
	default:
		return 0, fmt.Errorf("unsupported serializer: %s", c.Name())
	}
}

func fromID(id byte) (Codec, error) {
	switch id {
	case idMsgPack:
		return MsgPack, nil
	case idBSON:
		return BSON, nil
	default:
		return nil, fmt.Errorf("unsupported serializer id: %d", id)
	}
}

// Encode serializes v with c and prepends the header.
func Encode(c Codec, v any) ([]byte, error) {
	id, err := idFor(c)
	if err != nil {
		return nil, err
	}
	payload, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name(), err)
	}
	out := make([]byte, 0, headerLen+len(payload))
	out = append(out, magic...)
	out = append(out, version, id)
	return append(out, payload...), nil
}

// Decode reads the header of data and deserializes the payload into v with
// the codec that wrote it, which is returned.
func Decode(data []byte, v any) (Codec, error) {
	c, payload, err := Split(data)
	if err != nil {
		return nil, err
	}
	if err := c.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	return c, nil
}

// Split validates the header of data and returns its codec and payload.
func Split(data []byte) (Codec, []byte, error) {
	if len(data) < headerLen || !bytes.HasPrefix(data, []byte(magic)) {
		return nil, nil, fmt.Errorf("missing serialization header")
	}
	if v := data[len(magic)]; v != version {
		return nil, nil, fmt.Errorf("unsupported serialization version: %d", v)
	}
	c, err := fromID(data[len(magic)+1])
	if err != nil {
		return nil, nil, err
	}
	return c, data[headerLen:], nil
}
