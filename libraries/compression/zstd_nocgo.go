//go:build !cgo

package compression

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var decoderPool = sync.Pool{
	New: func() interface{} {
		d, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return d
	},
}

var (
	encoderMu sync.Mutex
	encoders  = map[int]*zstd.Encoder{}
)

// EncodeAll is safe for concurrent use, so one encoder per level is shared.
func encoderFor(level int) (*zstd.Encoder, error) {
	encoderMu.Lock()
	defer encoderMu.Unlock()
	if enc, ok := encoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	encoders[level] = enc
	return enc, nil
}

func ZstdCompressLevel(dst, src []byte, level int) ([]byte, error) {
	enc, err := encoderFor(level)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, dst[:0]), nil
}

func ZstdDecompress(dst, src []byte) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	return dec.DecodeAll(src, dst[:0])
}
