package vcf2bgen

import (
	"bytes"
	"fmt"
	"io"

	"github.com/carbocation/pfx"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression indicates how (and whether) the genotype probability data of
// each variant block is compressed. The values match the low two bits of the
// BGEN header flags.
type Compression uint32

const (
	CompressionDisabled Compression = iota
	CompressionZLIB
	CompressionZStandard
)

func (c Compression) String() string {
	switch c {
	case CompressionDisabled:
		return "none"
	case CompressionZLIB:
		return "zlib"
	case CompressionZStandard:
		return "zstd"
	default:
		return "Illegal selection"
	}
}

// ParseCompression maps a user-facing selector to a Compression value.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return CompressionDisabled, nil
	case "zlib":
		return CompressionZLIB, nil
	case "zstd":
		return CompressionZStandard, nil
	}

	return 0, fmt.Errorf("unknown compression %q (want none, zlib, or zstd)", s)
}

// Compress applies this Compression to src and returns the compressed bytes.
// The compression level is fixed so that repeated conversions of the same
// input are byte-identical.
func (c Compression) Compress(src []byte) ([]byte, error) {
	switch c {
	case CompressionDisabled:
		return src, nil
	case CompressionZLIB:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
		if err != nil {
			return nil, pfx.Err(err)
		}
		if _, err := zw.Write(src); err != nil {
			return nil, pfx.Err(err)
		}
		if err := zw.Close(); err != nil {
			return nil, pfx.Err(err)
		}
		return buf.Bytes(), nil
	case CompressionZStandard:
		zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, pfx.Err(err)
		}
		out := zw.EncodeAll(src, nil)
		if err := zw.Close(); err != nil {
			return nil, pfx.Err(err)
		}
		return out, nil
	}

	return nil, pfx.Err(fmt.Errorf("compression flag %d is not supported", c))
}

// Decompress reverses Compress. expectedLen is the decompressed length
// declared in the variant block and is used to size the output buffer; a
// mismatch between it and the actual decompressed size is an error.
func (c Compression) Decompress(src []byte, expectedLen int) ([]byte, error) {
	switch c {
	case CompressionDisabled:
		return src, nil
	case CompressionZLIB:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, pfx.Err(err)
		}
		defer zr.Close()
		buf := bytes.NewBuffer(make([]byte, 0, expectedLen))
		if _, err := io.Copy(buf, zr); err != nil {
			return nil, pfx.Err(err)
		}
		if buf.Len() != expectedLen {
			return nil, pfx.Err(fmt.Errorf("zlib block decompressed to %d bytes; expected %d", buf.Len(), expectedLen))
		}
		return buf.Bytes(), nil
	case CompressionZStandard:
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, pfx.Err(err)
		}
		defer zr.Close()
		out, err := zr.DecodeAll(src, make([]byte, 0, expectedLen))
		if err != nil {
			return nil, pfx.Err(err)
		}
		if len(out) != expectedLen {
			return nil, pfx.Err(fmt.Errorf("zstd block decompressed to %d bytes; expected %d", len(out), expectedLen))
		}
		return out, nil
	}

	return nil, pfx.Err(fmt.Errorf("compression flag %d is not supported", c))
}
