// Package codec compresses partition plaintext.
//
// Compressed payloads are framed as 0x00 <codec id> <compressed bytes>. An
// uncompressed partition is a bare JSON array, whose first byte is never 0x00,
// so Decode reads both forms regardless of the configured codec.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies a compression scheme.
type Codec byte

const (
	None   Codec = 0
	Gzip   Codec = 1
	Snappy Codec = 2
	Zstd   Codec = 3
)

const frameMarker = 0x00

var names = map[Codec]string{
	None:   "none",
	Gzip:   "gzip",
	Snappy: "snappy",
	Zstd:   "zstd",
}

func (c Codec) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("codec(%d)", byte(c))
}

// Parse maps a codec name to a Codec.
func Parse(name string) (Codec, error) {
	for c, n := range names {
		if n == name {
			return c, nil
		}
	}
	return None, fmt.Errorf("unsupported codec %q", name)
}

// Decompressor is a ReadCloser where Close releases Decompressor state, but
// does not Close or affect the underlying Reader.
type Decompressor io.ReadCloser

// Compressor is a WriteCloser where Close flushes final content to the
// underlying Writer, but does not Close it.
type Compressor io.WriteCloser

// NewCodecReader returns a Decompressor of r encoded with codec.
func NewCodecReader(r io.Reader, codec Codec) (Decompressor, error) {
	switch codec {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

// NewCodecWriter returns a Compressor wrapping w encoding with codec.
func NewCodecWriter(w io.Writer, codec Codec) (Compressor, error) {
	switch codec {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Encode compresses plaintext with codec. None returns plaintext unframed.
func Encode(codec Codec, plaintext []byte) ([]byte, error) {
	if codec == None {
		return plaintext, nil
	}

	var buf bytes.Buffer
	buf.WriteByte(frameMarker)
	buf.WriteByte(byte(codec))

	w, err := NewCodecWriter(&buf, codec)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("compress %s: %w", codec, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress %s: %w", codec, err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode for any codec, and passes unframed data through.
func Decode(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != frameMarker {
		return data, nil
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("truncated codec frame")
	}

	codec := Codec(data[1])
	r, err := NewCodecReader(bytes.NewReader(data[2:]), codec)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", codec, err)
	}
	return out, nil
}
