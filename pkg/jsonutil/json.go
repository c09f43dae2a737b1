// Package jsonutil provides a JSON serialization wrapper that prefers sonic
// on supported architectures and falls back to encoding/json elsewhere.
package jsonutil

import (
	stdjson "encoding/json"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/bytedance/sonic"
)

type jsonAPI struct {
	marshal    func(v interface{}) ([]byte, error)
	unmarshal  func(data []byte, v interface{}) error
	newEncoder func(w io.Writer) Encoder
	newDecoder func(r io.Reader) Decoder
}

var (
	currentAPI atomic.Value
	usingSonic bool
)

// Encoder is a JSON encoder interface.
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder is a JSON decoder interface.
type Decoder interface {
	Decode(v interface{}) error
}

func init() {
	var api *jsonAPI

	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		api = &jsonAPI{
			marshal:   sonic.Marshal,
			unmarshal: sonic.Unmarshal,
			newEncoder: func(w io.Writer) Encoder {
				return sonic.ConfigDefault.NewEncoder(w)
			},
			newDecoder: func(r io.Reader) Decoder {
				return sonic.ConfigDefault.NewDecoder(r)
			},
		}
		usingSonic = true
	} else {
		api = &jsonAPI{
			marshal:   stdjson.Marshal,
			unmarshal: stdjson.Unmarshal,
			newEncoder: func(w io.Writer) Encoder {
				return stdjson.NewEncoder(w)
			},
			newDecoder: func(r io.Reader) Decoder {
				return stdjson.NewDecoder(r)
			},
		}
		usingSonic = false
	}

	currentAPI.Store(api)
}

func getAPI() *jsonAPI {
	return currentAPI.Load().(*jsonAPI)
}

// Marshal encodes v into JSON bytes.
func Marshal(v interface{}) ([]byte, error) {
	return getAPI().marshal(v)
}

// Unmarshal decodes JSON bytes into v.
func Unmarshal(data []byte, v interface{}) error {
	return getAPI().unmarshal(data, v)
}

// NewEncoder creates a new JSON encoder for the writer.
func NewEncoder(w io.Writer) Encoder {
	return getAPI().newEncoder(w)
}

// NewDecoder creates a new JSON decoder for the reader.
func NewDecoder(r io.Reader) Decoder {
	return getAPI().newDecoder(r)
}

// IsUsingSonic reports whether sonic backs the current platform.
func IsUsingSonic() bool {
	return usingSonic
}
