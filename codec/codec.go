// Package codec serializes file records for backends that keep them
// outside the process.
package codec

import (
	"fmt"

	"github.com/unkn0wn-root/mogilefs"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Record is the codec used for stored file records.
type Record = Codec[mogilefs.File]

// Names lists the record formats ForName accepts.
var Names = []string{"msgpack", "cbor", "json"}

// ForName returns the record codec called name. An empty name selects
// msgpack.
func ForName(name string) (Record, error) {
	switch name {
	case "", "msgpack":
		return Msgpack[mogilefs.File]{}, nil
	case "cbor":
		return NewCBOR[mogilefs.File](false)
	case "json":
		return JSON[mogilefs.File]{}, nil
	}
	return nil, fmt.Errorf("codec: unknown record format %q", name)
}
