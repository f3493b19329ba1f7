package zarr

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compressor is the .zarray compressor entry (numcodecs configuration)
type Compressor struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// Zstd returns a numcodecs compatible zstd compressor configuration
func Zstd(level int) *Compressor {
	if level == 0 {
		level = 3
	}
	return &Compressor{ID: "zstd", Level: level}
}

type codec interface {
	encode(raw []byte) ([]byte, error)
	decode(stored []byte) ([]byte, error)
	close()
}

func newCodec(c *Compressor) (codec, error) {
	if c == nil {
		return rawCodec{}, nil
	}
	switch c.ID {
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return &zstdCodec{enc: enc, dec: dec}, nil
	default:
		return nil, fmt.Errorf("unsupported compressor %q", c.ID)
	}
}

type rawCodec struct{}

func (rawCodec) encode(raw []byte) ([]byte, error)    { return raw, nil }
func (rawCodec) decode(stored []byte) ([]byte, error) { return stored, nil }
func (rawCodec) close()                               {}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (z *zstdCodec) encode(raw []byte) ([]byte, error) {
	return z.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (z *zstdCodec) decode(stored []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (z *zstdCodec) close() {
	z.enc.Close()
	z.dec.Close()
}
