// Package compression selects streaming decoders from URI suffixes.
//
// The codec wraps the byte stream before the record reader ever sees
// it; a URI without a recognized suffix passes through undecoded.
package compression

import (
	"compress/bzip2"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/strataframe/strata/pkg/errors"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Codec identifies a compression scheme by its conventional file suffix
type Codec string

const (
	// Brotli decodes .br files
	Brotli Codec = "br"
	// Bzip2 decodes .bz2 files
	Bzip2 Codec = "bz2"
	// Deflate decodes raw .deflate files
	Deflate Codec = "deflate"
	// Gzip decodes .gz files
	Gzip Codec = "gz"
	// LZ4 decodes .lz4 files
	LZ4 Codec = "lz4"
	// Lzma decodes .lzma files
	Lzma Codec = "lzma"
	// Xz decodes .xz files
	Xz Codec = "xz"
	// Zlib decodes .zl files
	Zlib Codec = "zl"
	// Zstd decodes .zst files
	Zstd Codec = "zst"
)

var suffixes = map[string]Codec{
	"br":      Brotli,
	"bz2":     Bzip2,
	"deflate": Deflate,
	"gz":      Gzip,
	"lz4":     LZ4,
	"lzma":    Lzma,
	"xz":      Xz,
	"zl":      Zlib,
	"zst":     Zstd,
}

// FromURI returns the codec selected by the URI's final suffix, or
// false when no codec matches (pass-through).
func FromURI(uri string) (Codec, bool) {
	idx := strings.LastIndexByte(uri, '.')
	if idx < 0 {
		return "", false
	}
	codec, ok := suffixes[uri[idx+1:]]
	return codec, ok
}

// WrapReader wraps r with the codec's streaming decoder. The returned
// closer owns only decoder state, never the underlying reader.
func (c Codec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case Deflate:
		return flate.NewReader(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.TypeIO, "failed to initialize gzip decoder")
		}
		return zr, nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Lzma:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.TypeIO, "failed to initialize lzma decoder")
		}
		return io.NopCloser(lr), nil
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.TypeIO, "failed to initialize xz decoder")
		}
		return io.NopCloser(xr), nil
	case Zlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.TypeIO, "failed to initialize zlib decoder")
		}
		return zr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.TypeIO, "failed to initialize zstd decoder")
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, errors.Newf(errors.TypeCapability, "unknown compression codec %q", string(c))
	}
}
