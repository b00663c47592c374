package httpclient

import (
	"encoding/xml"

	json "github.com/goccy/go-json"
)

// Codec serializes request bodies and deserializes response bodies.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes with goccy/go-json.
type JSONCodec struct{}

func (JSONCodec) ContentType() string                { return "application/json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// XMLCodec encodes with encoding/xml.
type XMLCodec struct{}

func (XMLCodec) ContentType() string                { return "application/xml" }
func (XMLCodec) Marshal(v any) ([]byte, error)      { return xml.Marshal(v) }
func (XMLCodec) Unmarshal(data []byte, v any) error { return xml.Unmarshal(data, v) }

var (
	_ Codec = JSONCodec{}
	_ Codec = XMLCodec{}
)
