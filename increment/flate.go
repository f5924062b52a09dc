package increment

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// FlateEncode compresses p for use as the body of a /FlateDecode stream.
// PDF FlateDecode is the zlib format (RFC 1950), not raw deflate.
func FlateEncode(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(p); err != nil {
		return nil, fmt.Errorf("increment: flate encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("increment: flate encode: %w", err)
	}
	return buf.Bytes(), nil
}
