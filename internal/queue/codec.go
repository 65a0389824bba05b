package queue

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// encode serializes an arbitrary value into the queue's opaque on-disk
// payload format. It is a self-describing binary encoding (gob, with the
// concrete type registered against the process-global gob registry) —
// "highest available version" in the sense that gob always decodes with
// the decoder's current struct shape, tolerating added fields. The format
// is explicitly private to one deployment: any consumer reading the
// durable queue must use the same codec and the same registered types.
func encode(item any) ([]byte, error) {
	gob.Register(item)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&item); err != nil {
		return nil, fmt.Errorf("queue: encoding payload: %w", err)
	}

	return buf.Bytes(), nil
}

// decode deserializes a payload previously produced by encode.
func decode(payload []byte) (any, error) {
	var item any
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&item); err != nil {
		return nil, fmt.Errorf("queue: decoding payload: %w", err)
	}

	return item, nil
}

// stringify produces the platform-neutral textual representation of a key
// used for key-hash derivation, matching the wire-visible key hashing rule
// in the spec (lowercase-hex MD5 of the UTF-8 stringification of the key).
func stringify(key any) string {
	if s, ok := key.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", key)
}
