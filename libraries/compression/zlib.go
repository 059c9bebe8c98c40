package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ZlibInflate decompresses a complete zlib stream into memory. The output
// size is not bounded here; callers limit the size of src instead.
func ZlibInflate(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib header: %w", err)
	}
	defer r.Close()

	var out bytes.Buffer
	out.Grow(len(src) * 4)
	if _, err := io.Copy(&out, r); err != nil {
		return nil, fmt.Errorf("zlib inflate: %w", err)
	}
	return out.Bytes(), nil
}

func ZlibDeflate(src []byte) ([]byte, error) {
	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
