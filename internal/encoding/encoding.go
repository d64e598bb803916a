package encoding

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// AcceptEncoding advertises every coding Decode understands.
const AcceptEncoding = "gzip, deflate, br, zstd"

// Coding identifies a Content-Encoding applied to a response body.
type Coding int8

const (
	Identity Coding = iota
	Gzip
	Deflate
	Brotli
	Zstd
)

var codings = map[string]Coding{
	"":         Identity,
	"identity": Identity,
	"gzip":     Gzip,
	"x-gzip":   Gzip,
	"deflate":  Deflate,
	"br":       Brotli,
	"zstd":     Zstd,
}

// Shared zstd decoder, concurrency safe when used through DecodeAll.
var zstdDecoder, _ = zstd.NewReader(nil)

// Decode reverses the Content-Encoding applied to body. The header value is
// matched case-insensitively; stacked codings such as "gzip, br" are not
// supported.
func Decode(body []byte, contentEncoding string) ([]byte, error) {
	coding, ok := codings[strings.ToLower(strings.TrimSpace(contentEncoding))]
	if !ok {
		return nil, fmt.Errorf("%s encoding not supported", contentEncoding)
	}

	switch coding {
	case Identity:
		return body, nil
	case Gzip:
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case Deflate:
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)
	case Brotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case Zstd:
		return zstdDecoder.DecodeAll(body, nil)
	default:
		return nil, fmt.Errorf("%s encoding not supported", contentEncoding)
	}
}
