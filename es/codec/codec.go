// Package codec provides the opaque payload encode/decode seam the core
// never calls directly. EventMessage.Body is a BYTEA-style opaque blob;
// adapters and application code choose the encoding.
package codec

import "encoding/json"

// Codec converts a domain value to and from an opaque byte blob.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is the default Codec, backed by encoding/json. It is a reasonable
// default for payloads that don't need a binary wire format, matching the
// teacher's own choice to store metadata as JSON.
type JSON struct{}

// Encode implements Codec using json.Marshal.
func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements Codec using json.Unmarshal.
func (JSON) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
