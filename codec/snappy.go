package codec

import "github.com/golang/snappy"

// Snappy wraps another codec and runs its output through snappy block
// compression. This is the default value codec shape for cache regions:
// general serialization first, then a fast block compressor.
//
// Decode rejects input that is not a valid snappy block, so corrupted or
// foreign bytes fail before reaching the inner codec.
type Snappy[V any] struct {
	Inner Codec[V]
}

func (c Snappy[V]) Encode(v V) ([]byte, error) {
	raw, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func (c Snappy[V]) Decode(b []byte) (V, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		var zero V
		return zero, err
	}
	return c.Inner.Decode(raw)
}
