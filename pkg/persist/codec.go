package persist

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Codec converts values to and from stored payloads.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

type jsonCodec[T any] struct{}

// JSON encodes values with encoding/json. It is the default codec.
func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Marshal(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

type yamlCodec[T any] struct{}

// YAML encodes values with gopkg.in/yaml.v3, for payloads meant to be edited
// by hand.
func YAML[T any]() Codec[T] {
	return yamlCodec[T]{}
}

func (yamlCodec[T]) Marshal(v T) ([]byte, error) {
	return yaml.Marshal(v)
}

func (yamlCodec[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := yaml.Unmarshal(data, &v)
	return v, err
}
